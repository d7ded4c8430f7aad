// Package output writes model responses under a destination directory.
package output

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/internal/fsops"
)

const (
	parentDirectoryToken = ".."

	emptyNameErrorFormat       = "output file name %q is empty after sanitization"
	createDirectoryErrorFormat = "create output directory %s"
	writeFileErrorFormat       = "write output file %s"
)

var pathSeparators = []string{"/", `\`}

// SanitizeFileName strips both path separators and every ".." so the
// result cannot climb out of the destination directory. Applying it twice
// gives the same result as applying it once.
func SanitizeFileName(name string) string {
	sanitized := name
	for _, separator := range pathSeparators {
		sanitized = strings.ReplaceAll(sanitized, separator, "")
	}
	return strings.ReplaceAll(sanitized, parentDirectoryToken, "")
}

// Writer writes UTF-8 text files into one directory.
type Writer struct {
	fs        fsops.Ops
	directory string
}

func NewWriter(fs fsops.Ops, directory string) Writer {
	return Writer{fs: fs, directory: directory}
}

func (writer Writer) Directory() string { return writer.directory }

// EnsureDirectory creates the destination directory tree when absent.
func (writer Writer) EnsureDirectory() error {
	if err := writer.fs.MkdirAll(writer.directory); err != nil {
		return errkind.Mark(errors.Wrapf(err, createDirectoryErrorFormat, writer.directory), errkind.ErrWrite)
	}
	return nil
}

// Write sanitizes name, then writes content to it, replacing any existing
// file. It returns the path written.
func (writer Writer) Write(name string, content string) (string, error) {
	sanitized := SanitizeFileName(name)
	if strings.TrimSpace(sanitized) == "" {
		return "", errkind.Mark(errors.Newf(emptyNameErrorFormat, name), errkind.ErrWrite)
	}
	target := filepath.Join(writer.directory, sanitized)
	if err := writer.fs.WriteText(target, content); err != nil {
		return "", errkind.Mark(errors.Wrapf(err, writeFileErrorFormat, target), errkind.ErrWrite)
	}
	return target, nil
}
