package fsops

import (
	"errors"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	directoryPermissions = 0o755
	filePermissions      = 0o644
)

// extensionMIMETypes pins extensions whose answer from the mime package
// differs between platforms.
var extensionMIMETypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mp3":      "audio/mpeg",
	".wav":      "audio/wav",
	".ogg":      "audio/ogg",
	".flac":     "audio/flac",
	".m4a":      "audio/mp4",
	".mp4":      "video/mp4",
	".mov":      "video/quicktime",
	".webm":     "video/webm",
	".avi":      "video/x-msvideo",
	".heic":     "image/heic",
	".txt":      "text/plain",
	".csv":      "text/csv",
}

// Ops is the filesystem façade used by configuration, prompt assembly and
// output writing. The OS-backed and in-memory variants share one afero.Fs
// so viper can read from the same filesystem.
type Ops struct{ FS afero.Fs }

// NewOS returns operations on the real filesystem.
func NewOS() Ops { return Ops{FS: afero.NewOsFs()} }

// NewMem returns operations on an in-memory filesystem (for tests).
func NewMem() Ops { return Ops{FS: afero.NewMemMapFs()} }

func (o Ops) ReadFile(name string) ([]byte, error) { return afero.ReadFile(o.FS, filepath.Clean(name)) }

// ReadText reads name as UTF-8 text.
func (o Ops) ReadText(name string) (string, error) {
	content, err := o.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (o Ops) WriteText(name string, content string) error {
	return afero.WriteFile(o.FS, filepath.Clean(name), []byte(content), filePermissions)
}

func (o Ops) Open(name string) (afero.File, error) {
	return o.FS.Open(filepath.Clean(name))
}

func (o Ops) Stat(name string) (fs.FileInfo, error) {
	return o.FS.Stat(filepath.Clean(name))
}

func (o Ops) MkdirAll(path string) error {
	return o.FS.MkdirAll(filepath.Clean(path), directoryPermissions)
}

// IsRegularFile reports whether p exists and is not a directory.
func (o Ops) IsRegularFile(p string) bool {
	info, err := o.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// FirstExisting returns the first of names present in directory.
func (o Ops) FirstExisting(directory string, names ...string) (string, bool) {
	for _, name := range names {
		candidate := filepath.Join(directory, name)
		if o.IsRegularFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// GuessMIMEType returns a best-effort media type for p based on its
// extension, without parameters. It returns "" when nothing is known.
func GuessMIMEType(p string) string {
	extension := strings.ToLower(filepath.Ext(p))
	if extension == "" {
		return ""
	}
	guessed, known := extensionMIMETypes[extension]
	if !known {
		guessed = mime.TypeByExtension(extension)
	}
	if guessed == "" {
		return ""
	}
	mediaType, _, parseErr := mime.ParseMediaType(guessed)
	if parseErr != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(guessed, ";", 2)[0]))
	}
	return mediaType
}
