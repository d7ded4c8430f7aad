package analyze_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/gemini-tasks/internal/config"
	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/internal/fsops"
	"github.com/temirov/gemini-tasks/internal/pipeline"
	"github.com/temirov/gemini-tasks/tasks/analyze"
)

type fakeSession struct {
	service *fakeService
}

func (s fakeSession) Send(ctx context.Context, message pipeline.Message) (*pipeline.Response, error) {
	s.service.sent = append(s.service.sent, message)
	if len(s.service.sent) <= s.service.sendFailures {
		return nil, s.service.sendErr
	}
	return &pipeline.Response{Text: "analysis result"}, nil
}

type fakeService struct {
	uploads      []pipeline.UploadRequest
	failUploadAt int
	history      []pipeline.Message
	models       []string
	sent         []pipeline.Message
	sendFailures int
	sendErr      error
	deleted      []string
	deleteErr    error
}

func (f *fakeService) Upload(_ context.Context, request pipeline.UploadRequest) (pipeline.RemoteFile, error) {
	f.uploads = append(f.uploads, request)
	if f.failUploadAt > 0 && len(f.uploads) == f.failUploadAt {
		return pipeline.RemoteFile{}, errkind.Recoverable(errors.New("upload refused"))
	}
	index := len(f.uploads)
	return pipeline.RemoteFile{
		Name:     fmt.Sprintf("files/%d", index),
		URI:      fmt.Sprintf("https://example.test/files/%d", index),
		MIMEType: request.MIMEType,
	}, nil
}

func (f *fakeService) Delete(ctx context.Context, name string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func (f *fakeService) StartChat(model string, history []pipeline.Message) pipeline.ChatSession {
	f.models = append(f.models, model)
	f.history = history
	return fakeSession{service: f}
}

func noSleep(context.Context, time.Duration) error { return nil }

func analysisConfiguration(contextFiles ...string) config.Analysis {
	return config.Analysis{
		Credentials: config.Credentials{APIKey: "key"},
		Settings: config.Settings{
			TryTimes:        2,
			Interval:        time.Second,
			OutputDirectory: "/work/output",
			Model:           "gemini-test",
		},
		Inputs: config.AnalysisInputs{
			PromptPath:     "/work/prompt.md",
			ContextFiles:   contextFiles,
			OutputFileName: "review.md",
		},
	}
}

func seededFS(t *testing.T) fsops.Ops {
	t.Helper()
	ops := fsops.NewMem()
	for path, content := range map[string]string{
		"/work/prompt.md":      "List the bugs.",
		"/work/rules.md":       "# Rules",
		"/work/schema.json":    "{}",
		"/work/src/handler.go": "package handler",
	} {
		if err := ops.WriteText(path, content); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	return ops
}

func runner(attempts int) pipeline.Runner {
	return pipeline.Runner{Options: pipeline.RunOptions{MaxAttempts: attempts}, Sleep: noSleep}
}

func TestTask_RunWithContextFiles(t *testing.T) {
	ops := seededFS(t)
	service := &fakeService{}
	core, recorded := observer.New(zapcore.InfoLevel)

	task := analyze.New(analysisConfiguration("/work/rules.md", "/work/missing.md", "/work/schema.json"), "/work/src/handler.go", ops, service, runner(2), zap.New(core))
	report, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(service.uploads) != 3 {
		t.Fatalf("expected two context uploads and one analysis upload, got %+v", service.uploads)
	}
	expectedMIMETypes := []string{"text/markdown", "application/json", "text/plain"}
	for index, expected := range expectedMIMETypes {
		if service.uploads[index].MIMEType != expected {
			t.Fatalf("upload %d: expected %s, got %s", index, expected, service.uploads[index].MIMEType)
		}
	}
	if service.uploads[2].DisplayName != "handler.go" {
		t.Fatalf("unexpected display name %q", service.uploads[2].DisplayName)
	}

	if len(service.history) != 1 {
		t.Fatalf("expected one seeded message, got %d", len(service.history))
	}
	seed := service.history[0]
	if seed.Role != pipeline.RoleUser || seed.Text != analyze.ContextMessage || len(seed.Files) != 2 {
		t.Fatalf("unexpected seed message %+v", seed)
	}
	if service.models[0] != "gemini-test" {
		t.Fatalf("unexpected model %q", service.models[0])
	}

	if len(service.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(service.sent))
	}
	sent := service.sent[0]
	if expected := fmt.Sprintf(analyze.AnalysisMessageFormat, "handler.go", "List the bugs."); sent.Text != expected {
		t.Fatalf("expected message %q, got %q", expected, sent.Text)
	}
	if len(sent.Files) != 1 || sent.Files[0].Name != "files/3" {
		t.Fatalf("expected the analysis file to be attached, got %+v", sent.Files)
	}

	if len(service.deleted) != 3 || len(report.Deleted) != 3 {
		t.Fatalf("expected every upload to be deleted, got %v", service.deleted)
	}
	if report.OutputPath != filepath.Join("/work/output", "review.md") {
		t.Fatalf("unexpected output path %s", report.OutputPath)
	}
	content, readErr := ops.ReadText(report.OutputPath)
	if readErr != nil || content != "analysis result" {
		t.Fatalf("unexpected output %q (%v)", content, readErr)
	}
	if recorded.FilterMessage("file not found, skipping upload").Len() != 1 {
		t.Fatalf("expected the missing context file to be reported")
	}
}

func TestTask_RunWithoutContextDeletesEvenWhenSendFails(t *testing.T) {
	ops := seededFS(t)
	sendErr := errkind.Recoverable(errors.New("503 overloaded"))
	service := &fakeService{sendFailures: 2, sendErr: sendErr}

	task := analyze.New(analysisConfiguration(), "/work/src/handler.go", ops, service, runner(2), nil)
	report, err := task.Run(context.Background())
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected the send error, got %v", err)
	}
	if service.history != nil {
		t.Fatalf("expected an empty session, got %+v", service.history)
	}
	if len(service.sent) != 2 {
		t.Fatalf("expected two attempts, got %d", len(service.sent))
	}
	if len(service.deleted) != 1 || service.deleted[0] != "files/1" {
		t.Fatalf("expected the analysis upload to be deleted, got %v", service.deleted)
	}
	if len(report.Deleted) != 1 {
		t.Fatalf("expected the report to list the deletion, got %+v", report)
	}
	if ops.IsRegularFile("/work/output/review.md") {
		t.Fatalf("no output must be written when the send fails")
	}
}

func TestTask_RunCleansUpAfterPartialUpload(t *testing.T) {
	ops := seededFS(t)
	service := &fakeService{failUploadAt: 2}

	task := analyze.New(analysisConfiguration("/work/rules.md", "/work/schema.json"), "/work/src/handler.go", ops, service, runner(1), nil)
	_, err := task.Run(context.Background())
	if !errors.Is(err, errkind.ErrRemoteCall) {
		t.Fatalf("expected remote call error, got %v", err)
	}
	if len(service.deleted) != 1 || service.deleted[0] != "files/1" {
		t.Fatalf("expected the first context upload to be deleted, got %v", service.deleted)
	}
	if service.sent != nil {
		t.Fatalf("no message must be sent after a failed upload")
	}
}

func TestTask_RunCleansUpAfterCancellation(t *testing.T) {
	ops := seededFS(t)
	ctx, cancel := context.WithCancel(context.Background())
	service := &fakeService{sendFailures: 1, sendErr: context.Canceled}
	cancel()

	task := analyze.New(analysisConfiguration(), "/work/src/handler.go", ops, service, runner(3), nil)
	if _, err := task.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(service.deleted) != 1 {
		t.Fatalf("expected cleanup to run on a detached context, got %v", service.deleted)
	}
}

func TestTask_RunFailures(t *testing.T) {
	testCases := []struct {
		name         string
		analysisPath string
		promptPath   string
		outputName   string
		expectedKind error
	}{
		{name: "analysis file vanished", analysisPath: "/work/src/gone.go", promptPath: "/work/prompt.md", outputName: "review.md", expectedKind: errkind.ErrFileAccess},
		{name: "prompt missing", analysisPath: "/work/src/handler.go", promptPath: "/work/none.md", outputName: "review.md", expectedKind: errkind.ErrFileAccess},
		{name: "output name sanitizes to nothing", analysisPath: "/work/src/handler.go", promptPath: "/work/prompt.md", outputName: "../", expectedKind: errkind.ErrWrite},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configuration := analysisConfiguration()
			configuration.Inputs.PromptPath = testCase.promptPath
			configuration.Inputs.OutputFileName = testCase.outputName
			service := &fakeService{}

			task := analyze.New(configuration, testCase.analysisPath, seededFS(t), service, runner(1), nil)
			if _, err := task.Run(context.Background()); !errors.Is(err, testCase.expectedKind) {
				t.Fatalf("expected %v, got %v", testCase.expectedKind, err)
			}
		})
	}
}

func TestTask_DeleteFailureIsLoggedNotFatal(t *testing.T) {
	service := &fakeService{deleteErr: errors.New("permission denied")}
	core, recorded := observer.New(zapcore.WarnLevel)

	task := analyze.New(analysisConfiguration(), "/work/src/handler.go", seededFS(t), service, runner(1), zap.New(core))
	report, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Deleted) != 0 {
		t.Fatalf("expected no confirmed deletions, got %v", report.Deleted)
	}
	if recorded.FilterMessage("failed to delete uploaded file").Len() != 1 {
		t.Fatalf("expected the delete failure to be logged")
	}
}

func TestSeedHistory(t *testing.T) {
	if history := analyze.SeedHistory(nil); history != nil {
		t.Fatalf("expected no history, got %+v", history)
	}
	files := []pipeline.RemoteFile{{Name: "files/1"}}
	history := analyze.SeedHistory(files)
	if len(history) != 1 || history[0].Text != analyze.ContextMessage || len(history[0].Files) != 1 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestResolveMIMEType(t *testing.T) {
	testCases := []struct {
		path     string
		expected string
	}{
		{path: "README.md", expected: "text/markdown"},
		{path: "package.json", expected: "application/json"},
		{path: "photo.jpg", expected: "image/jpeg"},
		{path: "spec.pdf", expected: "application/pdf"},
		{path: "voice.mp3", expected: "audio/mpeg"},
		{path: "demo.mp4", expected: "video/mp4"},
		{path: "notes.txt", expected: "text/plain"},
		{path: "index.html", expected: "text/plain"},
		{path: "main.go", expected: "text/plain"},
		{path: "Dockerfile", expected: "text/plain"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.path, func(t *testing.T) {
			if got := analyze.ResolveMIMEType(testCase.path, nil); got != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, got)
			}
		})
	}
}
