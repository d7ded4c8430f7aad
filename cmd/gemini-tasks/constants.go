package geminitasks

const (
	rootCommandUse       = "gemini-tasks"
	rootCommandShort     = "Run prompt-driven Gemini tasks over local files"
	generateCommandUse   = "generate"
	generateCommandShort = "Fill the prompt template, call the model and write every returned file"
	analyzeCommandUse    = "analyze FILE"
	analyzeCommandShort  = "Upload context and FILE, ask the model about FILE and write the answer"

	configDirectoryFlagName  = "config-dir"
	configDirectoryFlagUsage = "Directory holding api.*, setting.* and inputs.* (default: working directory)"
	logLevelFlagName         = "log-level"
	logLevelFlagUsage        = "Log level: debug, info, warn or error"
	logFormatFlagName        = "log-format"
	logFormatFlagUsage       = "Log format: console or json"
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"

	analyzeArgumentCount = 1

	usageHintFormat              = "usage: %s"
	analysisFileMissingFormat    = "analysis file %s does not exist or is not a regular file"
	analysisFileMissingHint      = "pass the path of an existing file to analyze"
	loggerErrorMessage           = "configure logging"
	serviceErrorMessage          = "connect to Gemini"
	serviceCloseFailedLogMessage = "failed to close Gemini client"
	generateFinishedLogMessage   = "generate finished"
	analyzeFinishedLogMessage    = "analyze finished"
	commandStartedLogMessage     = "command started"
)
