// Package analyze implements the chat command: upload project context and
// one file, ask the model about it, write the answer.
package analyze

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/config"
	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/internal/fsops"
	"github.com/temirov/gemini-tasks/internal/output"
	"github.com/temirov/gemini-tasks/internal/pipeline"
	"github.com/temirov/gemini-tasks/internal/prompt"
)

const (
	// ContextMessage follows the context files in the seeded history.
	ContextMessage = "The files above are the context and coding conventions of the project I am working on. Use them as a reference when responding."
	// AnalysisMessageFormat takes the analysis file name and the prompt.
	AnalysisMessageFormat = "Analyze this file (%s) and produce the result according to the following prompt:\n\n%s"

	missingFileLogMessage   = "file not found, skipping upload"
	stageLogMessage         = "analysis stage"
	deleteFailedLogMessage  = "failed to delete uploaded file"
	outputWrittenLogMessage = "analysis written"

	analysisUploadErrorFormat = "analysis file %s was not uploaded"
)

// Stage names the step a run has reached, for logging.
type Stage string

const (
	StageInit             Stage = "init"
	StageContextUploaded  Stage = "context_uploaded"
	StageSessionOpen      Stage = "session_open"
	StageAnalysisUploaded Stage = "analysis_uploaded"
	StageMessageSent      Stage = "message_sent"
	StageCleanup          Stage = "cleanup"
)

// RemoteService is the part of pipeline.Service this task uses.
type RemoteService interface {
	pipeline.FileStore
	pipeline.Chatter
}

type Report struct {
	OutputPath string
	Uploaded   []pipeline.RemoteFile
	Deleted    []string
}

type Task struct {
	configuration config.Analysis
	analysisPath  string
	fs            fsops.Ops
	service       RemoteService
	runner        pipeline.Runner
	logger        *zap.Logger
}

func New(configuration config.Analysis, analysisPath string, fs fsops.Ops, service RemoteService, runner pipeline.Runner, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{
		configuration: configuration,
		analysisPath:  analysisPath,
		fs:            fs,
		service:       service,
		runner:        runner,
		logger:        logger,
	}
}

func (t *Task) Name() string { return "analyze" }

// Run uploads the files, sends the analysis request and writes the answer.
// Every uploaded file is deleted before Run returns, whatever the outcome.
func (t *Task) Run(ctx context.Context) (Report, error) {
	t.stage(StageInit)
	mainPrompt, templateErr := prompt.LoadTemplate(t.fs, t.configuration.Inputs.PromptPath)
	if templateErr != nil {
		return Report{}, templateErr
	}

	report := Report{}
	text, chatErr := t.chat(ctx, mainPrompt, &report)
	if chatErr != nil {
		return report, chatErr
	}

	writer := output.NewWriter(t.fs, t.configuration.Settings.OutputDirectory)
	if err := writer.EnsureDirectory(); err != nil {
		return report, err
	}
	written, writeErr := writer.Write(t.configuration.Inputs.OutputFileName, text)
	if writeErr != nil {
		return report, writeErr
	}
	report.OutputPath = written
	t.logger.Info(outputWrittenLogMessage, zap.String("path", written))
	return report, nil
}

func (t *Task) chat(ctx context.Context, mainPrompt string, report *Report) (string, error) {
	defer t.cleanup(ctx, report)

	contextFiles, contextErr := t.upload(ctx, t.configuration.Inputs.ContextFiles, report)
	if contextErr != nil {
		return "", contextErr
	}
	t.stage(StageContextUploaded, zap.Int("files", len(contextFiles)))

	session := t.service.StartChat(t.configuration.Settings.Model, SeedHistory(contextFiles))
	t.stage(StageSessionOpen, zap.Bool("seeded", len(contextFiles) > 0))

	analysisFiles, analysisErr := t.upload(ctx, []string{t.analysisPath}, report)
	if analysisErr != nil {
		return "", analysisErr
	}
	if len(analysisFiles) == 0 {
		return "", errkind.Mark(errors.Newf(analysisUploadErrorFormat, t.analysisPath), errkind.ErrFileAccess)
	}
	t.stage(StageAnalysisUploaded, zap.String("name", analysisFiles[0].Name))

	message := pipeline.Message{
		Role:  pipeline.RoleUser,
		Files: analysisFiles,
		Text:  fmt.Sprintf(AnalysisMessageFormat, filepath.Base(t.analysisPath), mainPrompt),
	}
	response, sendErr := t.runner.Run(ctx, func(callCtx context.Context) (*pipeline.Response, error) {
		return session.Send(callCtx, message)
	})
	if sendErr != nil {
		return "", sendErr
	}
	t.stage(StageMessageSent, zap.Int("length", len(response.Text)))
	return response.Text, nil
}

// SeedHistory is the one user turn that introduces the context files, or
// nothing when there are none.
func SeedHistory(contextFiles []pipeline.RemoteFile) []pipeline.Message {
	if len(contextFiles) == 0 {
		return nil
	}
	return []pipeline.Message{{Role: pipeline.RoleUser, Files: contextFiles, Text: ContextMessage}}
}

// upload sends every existing regular file in paths. Uploaded handles are
// recorded in report as soon as they exist so cleanup can see them.
func (t *Task) upload(ctx context.Context, paths []string, report *Report) ([]pipeline.RemoteFile, error) {
	uploaded := make([]pipeline.RemoteFile, 0, len(paths))
	for _, path := range paths {
		if !t.fs.IsRegularFile(path) {
			t.logger.Warn(missingFileLogMessage, zap.String("path", path))
			continue
		}
		remote, err := t.service.Upload(ctx, pipeline.UploadRequest{
			Path:        path,
			DisplayName: filepath.Base(path),
			MIMEType:    ResolveMIMEType(path, t.logger),
		})
		if err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, remote)
		report.Uploaded = append(report.Uploaded, remote)
	}
	return uploaded, nil
}

func (t *Task) cleanup(ctx context.Context, report *Report) {
	t.stage(StageCleanup, zap.Int("files", len(report.Uploaded)))
	cleanupCtx := context.WithoutCancel(ctx)
	for _, remote := range report.Uploaded {
		if err := t.service.Delete(cleanupCtx, remote.Name); err != nil {
			t.logger.Warn(deleteFailedLogMessage, zap.String("name", remote.Name), zap.Error(err))
			continue
		}
		report.Deleted = append(report.Deleted, remote.Name)
	}
}

func (t *Task) stage(stage Stage, fields ...zap.Field) {
	t.logger.Info(stageLogMessage, append([]zap.Field{zap.String("stage", string(stage))}, fields...)...)
}
