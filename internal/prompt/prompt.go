// Package prompt assembles batch prompts by replacing {NAME} tokens with
// the contents of the files configured for each placeholder.
package prompt

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/config"
	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/internal/fsops"
)

const (
	contentJoiner = "\n\n"

	missingInputLogMessage     = "placeholder input file not found, skipping"
	substitutedLogMessage      = "placeholder substituted"
	placeholderReadErrorFormat = "read input %s for placeholder %s"
	templateReadErrorFormat    = "read prompt template %s"
)

// Token returns the token replaced for the placeholder called name.
func Token(name string) string {
	return "{" + strings.ToUpper(name) + "}"
}

// LoadTemplate reads the prompt template file.
func LoadTemplate(fs fsops.Ops, path string) (string, error) {
	template, readErr := fs.ReadText(path)
	if readErr != nil {
		return "", errkind.Mark(errors.Wrapf(readErr, templateReadErrorFormat, path), errkind.ErrFileAccess)
	}
	return template, nil
}

// Substitute replaces every placeholder token in template, in declaration
// order, with the contents of its files joined by a blank line. Missing
// files are logged and skipped; a placeholder whose files are all missing
// is replaced by the empty string.
func Substitute(template string, placeholders []config.Placeholder, fs fsops.Ops, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	assembled := template
	for _, placeholder := range placeholders {
		contents := make([]string, 0, len(placeholder.Paths))
		for _, path := range placeholder.Paths {
			content, readErr := fs.ReadText(path)
			if readErr != nil {
				if fsops.IsNotExist(readErr) {
					logger.Warn(missingInputLogMessage,
						zap.String("placeholder", placeholder.Name),
						zap.String("path", path))
					continue
				}
				return "", errkind.Mark(errors.Wrapf(readErr, placeholderReadErrorFormat, path, placeholder.Name), errkind.ErrFileAccess)
			}
			contents = append(contents, content)
		}
		token := Token(placeholder.Name)
		assembled = strings.ReplaceAll(assembled, token, strings.Join(contents, contentJoiner))
		logger.Debug(substitutedLogMessage,
			zap.String("token", token),
			zap.Int("files", len(contents)))
	}
	return assembled, nil
}
