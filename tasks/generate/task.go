// Package generate implements the batch command: one prompt, one model
// call, many output files.
package generate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/config"
	"github.com/temirov/gemini-tasks/internal/fsops"
	"github.com/temirov/gemini-tasks/internal/output"
	"github.com/temirov/gemini-tasks/internal/pipeline"
	"github.com/temirov/gemini-tasks/internal/prompt"
)

// NoContentPlaceholder is written when a file name has no content segment.
const NoContentPlaceholder = "--- no content ---"

const (
	promptAssembledLogMessage = "prompt assembled"
	responseSplitLogMessage   = "response split"
	oddPartsLogMessage        = "response has a file name without content"
	fileWrittenLogMessage     = "file written"
	fileFailedLogMessage      = "failed to write file, continuing"
)

type OutputFile struct {
	Name    string
	Content string
}

// Report lists what a run wrote.
type Report struct {
	OutputDirectory string
	Written         []string
	Failed          []string
}

// SplitResponse splits text on the literal separator, trims each segment
// and drops the blank ones.
func SplitResponse(text string, separator string) []string {
	segments := strings.Split(text, separator)
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	return parts
}

// PairOutputs reads parts as alternating name and content.
func PairOutputs(parts []string) []OutputFile {
	files := make([]OutputFile, 0, (len(parts)+1)/2)
	for index := 0; index < len(parts); index += 2 {
		content := NoContentPlaceholder
		if index+1 < len(parts) {
			content = parts[index+1]
		}
		files = append(files, OutputFile{Name: parts[index], Content: content})
	}
	return files
}

type Task struct {
	configuration config.Batch
	fs            fsops.Ops
	generator     pipeline.Generator
	runner        pipeline.Runner
	logger        *zap.Logger
}

func New(configuration config.Batch, fs fsops.Ops, generator pipeline.Generator, runner pipeline.Runner, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{configuration: configuration, fs: fs, generator: generator, runner: runner, logger: logger}
}

func (t *Task) Name() string { return "generate" }

// Run assembles the prompt, calls the model with retry and writes every
// returned file. Individual write failures are reported, not fatal.
func (t *Task) Run(ctx context.Context) (Report, error) {
	settings := t.configuration.Settings
	template, templateErr := prompt.LoadTemplate(t.fs, t.configuration.Inputs.PromptPath)
	if templateErr != nil {
		return Report{}, templateErr
	}
	assembled, substituteErr := prompt.Substitute(template, t.configuration.Inputs.Placeholders, t.fs, t.logger)
	if substituteErr != nil {
		return Report{}, substituteErr
	}
	t.logger.Info(promptAssembledLogMessage, zap.Int("length", len(assembled)))

	response, runErr := t.runner.Run(ctx, func(callCtx context.Context) (*pipeline.Response, error) {
		return t.generator.Generate(callCtx, settings.Model, assembled)
	})
	if runErr != nil {
		return Report{}, runErr
	}

	parts := SplitResponse(response.Text, settings.Separator)
	if len(parts)%2 != 0 {
		t.logger.Warn(oddPartsLogMessage, zap.String("name", parts[len(parts)-1]))
	}
	files := PairOutputs(parts)
	t.logger.Info(responseSplitLogMessage, zap.Int("parts", len(parts)), zap.Int("files", len(files)))

	writer := output.NewWriter(t.fs, settings.OutputDirectory)
	if err := writer.EnsureDirectory(); err != nil {
		return Report{}, err
	}
	report := Report{OutputDirectory: writer.Directory()}
	for _, file := range files {
		written, writeErr := writer.Write(file.Name, file.Content)
		if writeErr != nil {
			t.logger.Error(fileFailedLogMessage, zap.String("name", file.Name), zap.Error(writeErr))
			report.Failed = append(report.Failed, file.Name)
			continue
		}
		t.logger.Info(fileWrittenLogMessage, zap.String("path", written))
		report.Written = append(report.Written, written)
	}
	return report, nil
}
