package zmake

import (
	"os"
	"path/filepath"
	"strings"
)

// Catalog is a snapshot of the installed-package database, loaded once per
// invocation and shared by concurrent builds.
type Catalog struct {
	versions map[string]string
}

// LoadCatalog reads the installed database under dir, where each package
// owns a subdirectory containing a "version" file whose first field is the
// installed version. A missing database yields an empty catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	cat := &Catalog{versions: make(map[string]string)}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return cat, nil
	}
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "version"))
		if err != nil {
			debugf("Skipping installed entry %s: %v\n", e.Name(), err)
			continue
		}
		fields := strings.Fields(string(data))
		if len(fields) == 0 {
			continue
		}
		cat.versions[e.Name()] = fields[0]
	}
	return cat, nil
}

// Version reports the installed version of name, if any.
func (c *Catalog) Version(name string) (string, bool) {
	v, ok := c.versions[name]
	return v, ok
}

// Has reports whether name is installed at all.
func (c *Catalog) Has(name string) bool {
	_, ok := c.versions[name]
	return ok
}

// Missing returns the dependencies from deps that the catalog does not
// satisfy, in input order.
func (c *Catalog) Missing(deps []Dependency) []Dependency {
	var missing []Dependency
	for _, dep := range deps {
		installed, ok := c.versions[dep.Name]
		if !ok || !dep.Satisfies(installed) {
			missing = append(missing, dep)
		}
	}
	return missing
}
