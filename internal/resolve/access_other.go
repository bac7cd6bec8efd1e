//go:build !unix

package resolve

import (
	"os"
	"path/filepath"
	"strings"
)

// checkAccess approximates access(2) on platforms without it: the file must
// open for reading and carry an executable extension.
func checkAccess(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	_ = f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".bat", ".cmd", ".com":
		return nil
	}
	return ErrNotExecutable
}
