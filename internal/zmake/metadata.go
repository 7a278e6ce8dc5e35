package zmake

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	packageInfoName = "package-info"
	manifestName    = "manifest"
)

// Composer turns a populated package directory into a distributable
// artifact with metadata sidecars.
type Composer struct {
	Packager string
}

// Compose writes the package-info and manifest sidecars into pkgDir, rolls
// the whole tree into a zstd-compressed tar at outPath, and removes the
// sidecars again so the package directory is left as the hooks produced it.
func (c *Composer) Compose(rec *Recipe, pkgDir, outPath string) error {
	infoPath := filepath.Join(pkgDir, packageInfoName)
	manifestPath := filepath.Join(pkgDir, manifestName)
	defer os.Remove(infoPath)
	defer os.Remove(manifestPath)

	if err := c.writePackageInfo(rec, pkgDir, infoPath); err != nil {
		return buildErr(ErrArchiveCreationFailed, rec.Name, err)
	}
	if err := writeManifest(pkgDir, manifestPath); err != nil {
		return buildErr(ErrArchiveCreationFailed, rec.Name, err)
	}
	if err := createTarZst(pkgDir, outPath); err != nil {
		return buildErr(ErrArchiveCreationFailed, rec.Name, err)
	}
	return nil
}

// Verify checks that an artifact carries both metadata sidecars.
func (c *Composer) Verify(archivePath string) error {
	names, err := listArchiveMembers(archivePath)
	if err != nil {
		return buildErr(ErrArchiveVerificationFailed, filepath.Base(archivePath), err)
	}
	var haveInfo, haveManifest bool
	for _, n := range names {
		switch strings.TrimPrefix(n, "./") {
		case packageInfoName:
			haveInfo = true
		case manifestName:
			haveManifest = true
		}
	}
	if !haveInfo || !haveManifest {
		return buildErr(ErrArchiveVerificationFailed, filepath.Base(archivePath),
			fmt.Errorf("archive is missing metadata members"))
	}
	return nil
}

func listArchiveMembers(archivePath string) ([]string, error) {
	return listTarZst(archivePath)
}

// writePackageInfo emits the key = value description of the package. The
// size field is the summed byte count of regular payload files, sidecars
// excluded.
func (c *Composer) writePackageInfo(rec *Recipe, pkgDir, outPath string) error {
	size, err := payloadSize(pkgDir)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "name = %s\n", rec.Name)
	fmt.Fprintf(&b, "version = %s\n", rec.Version)
	fmt.Fprintf(&b, "release = %s\n", rec.Release)
	fmt.Fprintf(&b, "builddate = %d\n", time.Now().Unix())
	fmt.Fprintf(&b, "packager = %s\n", c.Packager)
	fmt.Fprintf(&b, "size = %d\n", size)
	fmt.Fprintf(&b, "architecture = %s\n", rec.Architecture())
	if rec.Description != "" {
		fmt.Fprintf(&b, "description = %s\n", rec.Description)
	}
	if rec.URL != "" {
		fmt.Fprintf(&b, "url = %s\n", rec.URL)
	}
	for _, lic := range rec.Licenses {
		fmt.Fprintf(&b, "license = %s\n", lic)
	}
	for _, dep := range rec.RuntimeDeps {
		fmt.Fprintf(&b, "depend = %s\n", dep.String())
	}
	return os.WriteFile(outPath, []byte(b.String()), 0o644)
}

// payloadSize sums the sizes of regular files under pkgDir, skipping the
// metadata sidecars themselves.
func payloadSize(pkgDir string) (int64, error) {
	var size int64
	err := filepath.Walk(pkgDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(pkgDir, path)
		if err != nil {
			return err
		}
		if rel == packageInfoName || rel == manifestName {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}

// writeManifest emits an mtree-style listing of every payload file with its
// size and content digest, sorted so identical trees produce identical
// manifests.
func writeManifest(pkgDir, outPath string) error {
	var lines []string
	err := filepath.Walk(pkgDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(pkgDir, path)
		if err != nil {
			return err
		}
		if rel == packageInfoName || rel == manifestName {
			return nil
		}
		if strings.HasPrefix(rel, ".") {
			return nil
		}
		digest, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}
		lines = append(lines, fmt.Sprintf("./%s size=%d md5digest=%s\n",
			filepath.ToSlash(rel), info.Size(), digest))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(lines)

	var b strings.Builder
	b.WriteString("#mtree\n")
	b.WriteString("/set type=file uid=0 gid=0 mode=644\n")
	for _, line := range lines {
		b.WriteString(line)
	}
	return os.WriteFile(outPath, []byte(b.String()), 0o644)
}
