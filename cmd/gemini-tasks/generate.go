package geminitasks

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/tasks/generate"
)

func (app *Application) newGenerateCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   generateCommandUse,
		Short: generateCommandShort,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runGenerate(cmd.Context(), options)
		},
	}
}

func (app *Application) runGenerate(ctx context.Context, options *rootOptions) error {
	loader, loaderErr := app.loader(options)
	if loaderErr != nil {
		return loaderErr
	}
	batch, configurationErr := loader.LoadBatch()
	if configurationErr != nil {
		return configurationErr
	}

	service, serviceErr := app.openService(ctx, batch.Credentials.APIKey)
	if serviceErr != nil {
		return serviceErr
	}
	defer app.closeService(service)

	task := generate.New(batch, app.fs, service, app.runner(batch.Settings), app.logger)
	report, runErr := task.Run(ctx)
	if runErr != nil {
		return runErr
	}
	app.logger.Info(generateFinishedLogMessage,
		zap.String("task", task.Name()),
		zap.String("output_directory", report.OutputDirectory),
		zap.Int("written", len(report.Written)),
		zap.Int("failed", len(report.Failed)))
	return nil
}
