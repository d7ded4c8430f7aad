package analyze

import (
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/fsops"
)

// PlainTextMIMEType is sent for every file type the service is not known
// to accept.
const PlainTextMIMEType = "text/plain"

const mimeOverrideLogMessage = "guessed MIME type is sent as text/plain"

var (
	acceptedMIMETypes        = []string{"text/markdown", "application/json", "application/pdf"}
	acceptedMIMETypePrefixes = []string{"image/", "audio/", "video/"}
)

// ResolveMIMEType guesses the media type of path and narrows it to the set
// the upload endpoint accepts.
func ResolveMIMEType(path string, logger *zap.Logger) string {
	guessed := fsops.GuessMIMEType(path)
	if guessed == "" || guessed == PlainTextMIMEType {
		return PlainTextMIMEType
	}
	for _, accepted := range acceptedMIMETypes {
		if guessed == accepted {
			return guessed
		}
	}
	for _, prefix := range acceptedMIMETypePrefixes {
		if strings.HasPrefix(guessed, prefix) {
			return guessed
		}
	}
	if logger != nil {
		logger.Warn(mimeOverrideLogMessage, zap.String("path", path), zap.String("guessed", guessed))
	}
	return PlainTextMIMEType
}
