package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/temirov/gemini-tasks/internal/errkind"
)

const (
	// DefaultTryTimes is the number of attempts when setting.try_times is absent.
	DefaultTryTimes = 1
	// DefaultInterval is the wait between attempts when setting.interval is absent.
	DefaultInterval = 5 * time.Second
	// DefaultSeparator delimits segments of a batch response.
	DefaultSeparator = "------"
	// DefaultOutputDirectory receives every output file.
	DefaultOutputDirectory = "output"
	// DefaultModel is the Gemini model used by both pipelines.
	DefaultModel = "gemini-2.5-flash"
	// DefaultOutputFileName names the single analysis output.
	DefaultOutputFileName = "gemini_response.txt"

	invalidTryTimesErrorFormat = "setting.try_times must be at least 1, got %d"
	invalidIntervalErrorFormat = "setting.interval must not be negative, got %s"
	emptySeparatorErrorMessage = "setting.separator must not be empty"
	emptyModelErrorMessage     = "setting.model must not be empty"
	emptyPromptErrorMessage    = "inputs file does not name a prompt file (key: prompt)"
	emptyOutputNameErrorFormat = "inputs file names an empty output_file_name"
	emptyPlaceholderErrorMsg   = "inputs file contains a placeholder with an empty name"
)

// Credentials holds the static API key.
type Credentials struct {
	APIKey string
}

// Settings holds retry and output behaviour shared by both pipelines.
type Settings struct {
	TryTimes        int
	Interval        time.Duration
	Separator       string
	OutputDirectory string
	Model           string
}

// Placeholder maps a template token name to the files that replace it.
type Placeholder struct {
	Name  string
	Paths []string
}

// BatchInputs describes the prompt template and its placeholders. The
// placeholders keep the order in which the inputs file declares them.
type BatchInputs struct {
	PromptPath   string
	Placeholders []Placeholder
}

// AnalysisInputs describes the chat analysis run.
type AnalysisInputs struct {
	PromptPath     string
	ContextFiles   []string
	OutputFileName string
}

// Batch is the complete configuration of the generate command.
type Batch struct {
	Credentials Credentials
	Settings    Settings
	Inputs      BatchInputs
}

// Analysis is the complete configuration of the analyze command.
type Analysis struct {
	Credentials Credentials
	Settings    Settings
	Inputs      AnalysisInputs
}

// Validate checks the settings shared by both pipelines.
func (settings Settings) Validate(requireSeparator bool) error {
	if settings.TryTimes < 1 {
		return configurationErrorf(invalidTryTimesErrorFormat, settings.TryTimes)
	}
	if settings.Interval < 0 {
		return configurationErrorf(invalidIntervalErrorFormat, settings.Interval)
	}
	if requireSeparator && settings.Separator == "" {
		return configurationErrorf(emptySeparatorErrorMessage)
	}
	if strings.TrimSpace(settings.Model) == "" {
		return configurationErrorf(emptyModelErrorMessage)
	}
	return nil
}

func (inputs BatchInputs) Validate() error {
	if strings.TrimSpace(inputs.PromptPath) == "" {
		return configurationErrorf(emptyPromptErrorMessage)
	}
	for _, placeholder := range inputs.Placeholders {
		if strings.TrimSpace(placeholder.Name) == "" {
			return configurationErrorf(emptyPlaceholderErrorMsg)
		}
	}
	return nil
}

func (inputs AnalysisInputs) Validate() error {
	if strings.TrimSpace(inputs.PromptPath) == "" {
		return configurationErrorf(emptyPromptErrorMessage)
	}
	if strings.TrimSpace(inputs.OutputFileName) == "" {
		return configurationErrorf(emptyOutputNameErrorFormat)
	}
	return nil
}

func configurationErrorf(format string, args ...any) error {
	return errkind.Mark(errors.Newf(format, args...), errkind.ErrConfiguration)
}
