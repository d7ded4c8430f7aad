package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/encoding/ini"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gemini-tasks/internal/fsops"
)

const (
	// APIKeyEnvironmentVariable overrides gemini.api_key from the credentials file.
	APIKeyEnvironmentVariable = "GEMINI_API_KEY"

	credentialsFileName = "api"
	settingsFileName    = "setting"

	apiKeyKey    = "gemini.api_key"
	tryTimesKey  = "setting.try_times"
	intervalKey  = "setting.interval"
	separatorKey = "setting.separator"
	distKey      = "setting.dist"
	modelKey     = "setting.model"

	iniFormat   = "ini"
	yamlNullTag = "!!null"

	loaderWorkingDirectoryErrorFormat = "determine working directory: %v"
	credentialsReadErrorFormat        = "read credentials from %s: %v"
	missingAPIKeyErrorFormat          = "no API key found: %s.{yaml,yml,json,toml,ini} in %s has no %s and %s is not set"
	missingAPIKeyHint                 = "export " + APIKeyEnvironmentVariable + " or add gemini.api_key to api.yaml"
	settingsReadErrorFormat           = "read settings from %s: %v"
	settingValueErrorFormat           = "parse %s: %v"
	inputsMissingErrorFormat          = "no inputs file (inputs.json, inputs.yaml or inputs.yml) in %s"
	inputsReadErrorFormat             = "read inputs file %s: %v"
	inputsParseErrorFormat            = "parse inputs file %s: %v"
	inputsShapeErrorFormat            = "inputs file %s: %s must be %s"
)

var inputsFileNames = []string{"inputs.json", "inputs.yaml", "inputs.yml"}

// Loader reads the credentials, settings and inputs files from one
// configuration directory.
type Loader struct {
	fs        fsops.Ops
	directory string
}

// NewLoader constructs a loader rooted at directory.
func NewLoader(fs fsops.Ops, directory string) Loader {
	return Loader{fs: fs, directory: directory}
}

// NewDefaultLoader falls back to the process working directory when
// directory is blank.
func NewDefaultLoader(fs fsops.Ops, directory string) (Loader, error) {
	resolvedDirectory := strings.TrimSpace(directory)
	if resolvedDirectory == "" {
		workingDirectory, workingDirectoryErr := os.Getwd()
		if workingDirectoryErr != nil {
			return Loader{}, configurationErrorf(loaderWorkingDirectoryErrorFormat, workingDirectoryErr)
		}
		resolvedDirectory = workingDirectory
	}
	return NewLoader(fs, resolvedDirectory), nil
}

// Directory returns the configuration directory.
func (loader Loader) Directory() string { return loader.directory }

// LoadBatch loads the generate command configuration.
func (loader Loader) LoadBatch() (Batch, error) {
	credentials, credentialsErr := loader.LoadCredentials()
	if credentialsErr != nil {
		return Batch{}, credentialsErr
	}
	settings, settingsErr := loader.LoadSettings()
	if settingsErr != nil {
		return Batch{}, settingsErr
	}
	if err := settings.Validate(true); err != nil {
		return Batch{}, err
	}
	document, inputsPath, documentErr := loader.loadInputsDocument()
	if documentErr != nil {
		return Batch{}, documentErr
	}
	placeholders, placeholdersErr := decodePlaceholders(inputsPath, document.Inputs)
	if placeholdersErr != nil {
		return Batch{}, placeholdersErr
	}
	inputs := BatchInputs{
		PromptPath:   strings.TrimSpace(document.Prompt),
		Placeholders: placeholders,
	}
	if err := inputs.Validate(); err != nil {
		return Batch{}, errors.Wrapf(err, "inputs file %s", inputsPath)
	}
	return Batch{Credentials: credentials, Settings: settings, Inputs: inputs}, nil
}

// LoadAnalysis loads the analyze command configuration.
func (loader Loader) LoadAnalysis() (Analysis, error) {
	credentials, credentialsErr := loader.LoadCredentials()
	if credentialsErr != nil {
		return Analysis{}, credentialsErr
	}
	settings, settingsErr := loader.LoadSettings()
	if settingsErr != nil {
		return Analysis{}, settingsErr
	}
	if err := settings.Validate(false); err != nil {
		return Analysis{}, err
	}
	document, inputsPath, documentErr := loader.loadInputsDocument()
	if documentErr != nil {
		return Analysis{}, documentErr
	}
	outputFileName := DefaultOutputFileName
	if document.OutputFileName != nil {
		outputFileName = strings.TrimSpace(*document.OutputFileName)
	}
	inputs := AnalysisInputs{
		PromptPath:     strings.TrimSpace(document.Prompt),
		ContextFiles:   document.ContextFiles,
		OutputFileName: outputFileName,
	}
	if err := inputs.Validate(); err != nil {
		return Analysis{}, errors.Wrapf(err, "inputs file %s", inputsPath)
	}
	return Analysis{Credentials: credentials, Settings: settings, Inputs: inputs}, nil
}

// LoadCredentials reads gemini.api_key from api.* or GEMINI_API_KEY.
func (loader Loader) LoadCredentials() (Credentials, error) {
	credentialsViper, viperErr := loader.newViper(credentialsFileName)
	if viperErr != nil {
		return Credentials{}, configurationErrorf(credentialsReadErrorFormat, loader.directory, viperErr)
	}
	if bindErr := credentialsViper.BindEnv(apiKeyKey, APIKeyEnvironmentVariable); bindErr != nil {
		return Credentials{}, configurationErrorf(credentialsReadErrorFormat, loader.directory, bindErr)
	}
	if readErr := credentialsViper.ReadInConfig(); readErr != nil && !isConfigFileNotFound(readErr) {
		return Credentials{}, configurationErrorf(credentialsReadErrorFormat, loader.directory, readErr)
	}
	apiKey := strings.TrimSpace(credentialsViper.GetString(apiKeyKey))
	if apiKey == "" {
		missingErr := configurationErrorf(missingAPIKeyErrorFormat, credentialsFileName, loader.directory, apiKeyKey, APIKeyEnvironmentVariable)
		return Credentials{}, errors.WithHint(missingErr, missingAPIKeyHint)
	}
	return Credentials{APIKey: apiKey}, nil
}

// LoadSettings reads setting.*; a missing file yields the defaults.
func (loader Loader) LoadSettings() (Settings, error) {
	settingsViper, viperErr := loader.newViper(settingsFileName)
	if viperErr != nil {
		return Settings{}, configurationErrorf(settingsReadErrorFormat, loader.directory, viperErr)
	}
	setSettingDefaults(settingsViper)
	if readErr := settingsViper.ReadInConfig(); readErr != nil && !isConfigFileNotFound(readErr) {
		return Settings{}, configurationErrorf(settingsReadErrorFormat, loader.directory, readErr)
	}

	tryTimes, tryTimesErr := cast.ToIntE(settingsViper.Get(tryTimesKey))
	if tryTimesErr != nil {
		return Settings{}, configurationErrorf(settingValueErrorFormat, tryTimesKey, tryTimesErr)
	}
	interval, intervalErr := parseInterval(settingsViper.Get(intervalKey))
	if intervalErr != nil {
		return Settings{}, configurationErrorf(settingValueErrorFormat, intervalKey, intervalErr)
	}
	outputDirectory := strings.TrimSpace(settingsViper.GetString(distKey))
	if outputDirectory == "" {
		outputDirectory = DefaultOutputDirectory
	}

	return Settings{
		TryTimes:        tryTimes,
		Interval:        interval,
		Separator:       settingsViper.GetString(separatorKey),
		OutputDirectory: outputDirectory,
		Model:           strings.TrimSpace(settingsViper.GetString(modelKey)),
	}, nil
}

// newViper looks up name.{json,toml,yaml,yml,ini} in the configuration
// directory. INI files use their section as the key prefix.
func (loader Loader) newViper(name string) (*viper.Viper, error) {
	codecRegistry := viper.NewCodecRegistry()
	if err := codecRegistry.RegisterCodec(iniFormat, ini.Codec{}); err != nil {
		return nil, err
	}
	instance := viper.NewWithOptions(viper.WithCodecRegistry(codecRegistry))
	instance.SetFs(loader.fs.FS)
	instance.SetConfigName(name)
	instance.AddConfigPath(loader.directory)
	return instance, nil
}

func setSettingDefaults(instance *viper.Viper) {
	instance.SetDefault(tryTimesKey, DefaultTryTimes)
	instance.SetDefault(intervalKey, DefaultInterval.Seconds())
	instance.SetDefault(separatorKey, DefaultSeparator)
	instance.SetDefault(distKey, DefaultOutputDirectory)
	instance.SetDefault(modelKey, DefaultModel)
}

func isConfigFileNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// parseInterval accepts seconds (number or numeric string, as in
// "INTERVAL = 2.5") or a Go duration string such as "1500ms".
func parseInterval(value any) (time.Duration, error) {
	if text, isText := value.(string); isText {
		trimmed := strings.TrimSpace(text)
		if seconds, parseErr := strconv.ParseFloat(trimmed, 64); parseErr == nil {
			return secondsToDuration(seconds), nil
		}
		return time.ParseDuration(trimmed)
	}
	seconds, castErr := cast.ToFloat64E(value)
	if castErr != nil {
		return 0, castErr
	}
	return secondsToDuration(seconds), nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

type inputsDocument struct {
	Prompt         string    `yaml:"prompt"`
	Inputs         yaml.Node `yaml:"inputs"`
	ContextFiles   []string  `yaml:"context_files"`
	OutputFileName *string   `yaml:"output_file_name"`
}

// loadInputsDocument parses the inputs file with yaml.v3, which reads JSON
// as well, keeping the declaration order of the inputs mapping.
func (loader Loader) loadInputsDocument() (inputsDocument, string, error) {
	inputsPath, found := loader.fs.FirstExisting(loader.directory, inputsFileNames...)
	if !found {
		return inputsDocument{}, "", configurationErrorf(inputsMissingErrorFormat, loader.directory)
	}
	content, readErr := loader.fs.ReadFile(inputsPath)
	if readErr != nil {
		return inputsDocument{}, inputsPath, configurationErrorf(inputsReadErrorFormat, inputsPath, readErr)
	}
	var document inputsDocument
	if err := yaml.Unmarshal(content, &document); err != nil {
		return inputsDocument{}, inputsPath, configurationErrorf(inputsParseErrorFormat, inputsPath, err)
	}
	return document, inputsPath, nil
}

func decodePlaceholders(inputsPath string, node yaml.Node) ([]Placeholder, error) {
	switch {
	case node.Kind == 0:
		return nil, nil
	case node.Kind == yaml.ScalarNode && node.Tag == yamlNullTag:
		return nil, nil
	case node.Kind != yaml.MappingNode:
		return nil, configurationErrorf(inputsShapeErrorFormat, inputsPath, "inputs", "a mapping of placeholder names to file lists")
	}

	placeholders := make([]Placeholder, 0, len(node.Content)/2)
	for index := 0; index+1 < len(node.Content); index += 2 {
		keyNode := node.Content[index]
		valueNode := node.Content[index+1]
		paths, pathsErr := decodePaths(inputsPath, keyNode.Value, valueNode)
		if pathsErr != nil {
			return nil, pathsErr
		}
		placeholders = append(placeholders, Placeholder{Name: keyNode.Value, Paths: paths})
	}
	return placeholders, nil
}

func decodePaths(inputsPath string, name string, node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == yamlNullTag {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var paths []string
		if err := node.Decode(&paths); err != nil {
			return nil, configurationErrorf(inputsShapeErrorFormat, inputsPath, "inputs."+name, "a list of file paths")
		}
		return paths, nil
	default:
		return nil, configurationErrorf(inputsShapeErrorFormat, inputsPath, "inputs."+name, "a file path or a list of file paths")
	}
}
