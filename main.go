package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	geminitasks "github.com/temirov/gemini-tasks/cmd/gemini-tasks"
	"github.com/temirov/gemini-tasks/internal/errkind"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	application := geminitasks.NewApplication()

	executionErr := application.Execute(ctx, os.Args[1:])
	stop()
	logger := application.Logger()
	if executionErr != nil {
		logger.Error("command execution failed",
			zap.Error(executionErr),
			zap.String("kind", errkind.Name(executionErr)),
			zap.Strings("hints", errkind.Hints(executionErr)))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}
