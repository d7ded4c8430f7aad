package geminitasks

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/tasks/analyze"
)

func (app *Application) newAnalyzeCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   analyzeCommandUse,
		Short: analyzeCommandShort,
		Args:  usageArgs(cobra.ExactArgs(analyzeArgumentCount)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runAnalyze(cmd.Context(), options, args[0])
		},
	}
}

// runAnalyze checks the analysis file before any configuration is read.
func (app *Application) runAnalyze(ctx context.Context, options *rootOptions, analysisPath string) error {
	if !app.fs.IsRegularFile(analysisPath) {
		missingErr := errkind.Mark(errors.Newf(analysisFileMissingFormat, analysisPath), errkind.ErrUsage)
		return errors.WithHint(missingErr, analysisFileMissingHint)
	}

	loader, loaderErr := app.loader(options)
	if loaderErr != nil {
		return loaderErr
	}
	analysis, configurationErr := loader.LoadAnalysis()
	if configurationErr != nil {
		return configurationErr
	}

	service, serviceErr := app.openService(ctx, analysis.Credentials.APIKey)
	if serviceErr != nil {
		return serviceErr
	}
	defer app.closeService(service)

	task := analyze.New(analysis, analysisPath, app.fs, service, app.runner(analysis.Settings), app.logger)
	report, runErr := task.Run(ctx)
	if runErr != nil {
		return runErr
	}
	app.logger.Info(analyzeFinishedLogMessage,
		zap.String("task", task.Name()),
		zap.String("output_path", report.OutputPath),
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("deleted", len(report.Deleted)))
	return nil
}
