package zmake

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// hashString returns the BLAKE3-256 digest of s as lowercase hex.
func hashString(s string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// hashFile returns the BLAKE3-256 digest of the file contents as lowercase hex.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyChecksum compares the digest of path against want. The SKIP sentinel
// disables verification for this file.
func verifyChecksum(path, want string) error {
	if want == SkipChecksum {
		debugf("Skipping checksum verification for %s\n", path)
		return nil
	}
	got, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	if got != want {
		return fmt.Errorf("digest %s does not match expected %s", got, want)
	}
	return nil
}
