package geminitasks

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/config"
	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/internal/fsops"
	"github.com/temirov/gemini-tasks/internal/llm"
	"github.com/temirov/gemini-tasks/internal/logging"
	"github.com/temirov/gemini-tasks/internal/pipeline"
)

// ServiceFactory opens the remote model API for one command run.
type ServiceFactory func(ctx context.Context, apiKey string, fs fsops.Ops, logger *zap.Logger) (pipeline.Service, error)

// LoggerFactory builds the process logger from the logging flags.
type LoggerFactory func(level string, format string) (*zap.Logger, error)

// Application wires configuration, the Gemini client and the tasks behind
// the cobra command tree.
type Application struct {
	fs         fsops.Ops
	newService ServiceFactory
	newLogger  LoggerFactory
	sleep      pipeline.SleepFunc
	logger     *zap.Logger
}

type rootOptions struct {
	configDirectory string
	logLevel        string
	logFormat       string
}

func NewApplication() *Application {
	return &Application{
		fs:         fsops.NewOS(),
		newService: newGeminiService,
		newLogger:  logging.New,
		sleep:      pipeline.ContextSleep,
		logger:     logging.Default(),
	}
}

func newGeminiService(ctx context.Context, apiKey string, fs fsops.Ops, logger *zap.Logger) (pipeline.Service, error) {
	client, err := llm.NewClient(ctx, apiKey, fs, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Logger returns the logger configured by the last Execute call.
func (app *Application) Logger() *zap.Logger { return app.logger }

// Execute runs the command line in args.
func (app *Application) Execute(ctx context.Context, args []string) error {
	command := app.newRootCommand()
	command.SetArgs(args)
	return command.ExecuteContext(ctx)
}

func (app *Application) newRootCommand() *cobra.Command {
	options := &rootOptions{}
	command := &cobra.Command{
		Use:           rootCommandUse,
		Short:         rootCommandShort,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.newLogger(options.logLevel, options.logFormat)
			if err != nil {
				return errkind.Mark(errors.Wrap(err, loggerErrorMessage), errkind.ErrUsage)
			}
			app.logger = logger
			app.logger.Debug(commandStartedLogMessage, zap.String("command", cmd.Name()), zap.String("config_dir", options.configDirectory))
			return nil
		},
	}
	command.PersistentFlags().StringVar(&options.configDirectory, configDirectoryFlagName, "", configDirectoryFlagUsage)
	command.PersistentFlags().StringVar(&options.logLevel, logLevelFlagName, defaultLogLevel, logLevelFlagUsage)
	command.PersistentFlags().StringVar(&options.logFormat, logFormatFlagName, defaultLogFormat, logFormatFlagUsage)
	command.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(cmd, err)
	})

	command.AddCommand(app.newGenerateCommand(options), app.newAnalyzeCommand(options))
	return command
}

func (app *Application) loader(options *rootOptions) (config.Loader, error) {
	return config.NewDefaultLoader(app.fs, options.configDirectory)
}

func (app *Application) openService(ctx context.Context, apiKey string) (pipeline.Service, error) {
	service, err := app.newService(ctx, apiKey, app.fs, app.logger)
	if err != nil {
		return nil, errkind.Mark(errors.Wrap(err, serviceErrorMessage), errkind.ErrRemoteCall)
	}
	return service, nil
}

func (app *Application) closeService(service pipeline.Service) {
	if err := service.Close(); err != nil {
		app.logger.Warn(serviceCloseFailedLogMessage, zap.Error(err))
	}
}

func (app *Application) runner(settings config.Settings) pipeline.Runner {
	return pipeline.Runner{
		Options: pipeline.RunOptions{MaxAttempts: settings.TryTimes, Interval: settings.Interval},
		Logger:  app.logger,
		Sleep:   app.sleep,
	}
}

func usageError(cmd *cobra.Command, err error) error {
	return errors.WithHint(errkind.Mark(err, errkind.ErrUsage), fmt.Sprintf(usageHintFormat, cmd.UseLine()))
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validator cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validator(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	}
}
