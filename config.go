package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configBaseName = "guardian"
	configFileName = configBaseName + ".yaml"
	envPrefix      = "GUARDIAN"

	rootFlagName    = "root"
	verboseFlagName = "verbose"

	ignoreDirsKey         = "ignore_dirs"
	codeExtensionsKey     = "code_extensions"
	configExtensionsKey   = "config_extensions"
	docExtensionsKey      = "doc_extensions"
	styleExtensionsKey    = "style_extensions"
	dataExtensionsKey     = "data_extensions"
	watchExtensionsKey    = "watch_extensions"
	debounceWindowKey     = "debounce_window"
	maxScanRetriesKey     = "max_scan_retries"
	scanOnStartKey        = "scan_on_start"
	duplicateThresholdKey = "duplicate_threshold"
	oversizedFileKey      = "oversized_file_lines"
	oversizedFunctionKey  = "oversized_function_lines"
	requiredDocsKey       = "required_docs"
	maxWorkersKey         = "max_workers"
	maxFileBytesKey       = "max_file_bytes"
	vcsTimeoutKey         = "vcs_timeout"
	stateDirKey           = "state_dir"
	snapshotFileKey       = "snapshot_file"
	qualityFileKey        = "quality_file"
	logFileKey            = "log_file"

	logLevelKey      = "log.level"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

func init() {
	initConfig(viper.GetViper())
}

// initConfig registers defaults for every key so GUARDIAN_* variables are
// seen by AutomaticEnv, then reads guardian.yaml from the working directory.
func initConfig(v *viper.Viper) {
	v.SetConfigName(configBaseName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	def := guardian.DefaultOptions()
	v.SetDefault(ignoreDirsKey, def.IgnoreDirs)
	v.SetDefault(codeExtensionsKey, def.CodeExtensions)
	v.SetDefault(configExtensionsKey, def.ConfigExtensions)
	v.SetDefault(docExtensionsKey, def.DocExtensions)
	v.SetDefault(styleExtensionsKey, def.StyleExtensions)
	v.SetDefault(dataExtensionsKey, def.DataExtensions)
	v.SetDefault(watchExtensionsKey, def.WatchExtensions)
	v.SetDefault(debounceWindowKey, def.DebounceWindow)
	v.SetDefault(maxScanRetriesKey, def.MaxScanRetries)
	v.SetDefault(scanOnStartKey, def.ScanOnStart)
	v.SetDefault(duplicateThresholdKey, def.DuplicateThreshold)
	v.SetDefault(oversizedFileKey, def.OversizedFileLines)
	v.SetDefault(oversizedFunctionKey, def.OversizedFunctionLines)
	v.SetDefault(requiredDocsKey, def.RequiredDocs)
	v.SetDefault(maxWorkersKey, def.MaxWorkers)
	v.SetDefault(maxFileBytesKey, def.MaxFileBytes)
	v.SetDefault(vcsTimeoutKey, def.VCSTimeout)
	v.SetDefault(stateDirKey, def.StateDir)
	v.SetDefault(snapshotFileKey, def.SnapshotFile)
	v.SetDefault(qualityFileKey, def.QualityFile)
	v.SetDefault(logFileKey, def.LogFile)

	v.SetDefault(rootFlagName, ".")
	v.SetDefault(verboseFlagName, false)
	v.SetDefault(logLevelKey, "info")
	v.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	v.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	v.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	v.SetDefault(logCompressKey, defaultLogCompress)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("config: ignoring unreadable config file", "error", err)
		}
	}
}

// loadOptions decodes the merged defaults, config file, env and flags.
func loadOptions(v *viper.Viper) (guardian.Options, error) {
	opts := guardian.DefaultOptions()
	if err := v.Unmarshal(&opts); err != nil {
		return guardian.Options{}, fmt.Errorf("decode config: %w", err)
	}
	return opts, nil
}

// logLevel reads log.level as a slog level name ("debug", "warn", "info+2").
// Verbose forces debug; an unknown name falls back to info.
func logLevel(v *viper.Viper, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v.GetString(logLevelKey)))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// configureLogger sends the default slog logger to a rotating file.
func configureLogger(v *viper.Viper, logPath string, verbose bool) {
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    v.GetInt(logMaxSizeKey),
		MaxBackups: v.GetInt(logMaxBackupsKey),
		MaxAge:     v.GetInt(logMaxAgeKey),
		Compress:   v.GetBool(logCompressKey),
	}
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel(v, verbose),
	})
	slog.SetDefault(slog.New(handler))
}
