package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var errRotatingWithoutFile = errors.New("rotating logs require a log file path")

// Level is an hclog level written as its name in config files.
type Level hclog.Level

func (l Level) MarshalText() ([]byte, error) {
	return []byte(hclog.Level(l).String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	level := hclog.LevelFromString(string(text))
	if level == hclog.NoLevel {
		return fmt.Errorf("unknown log level %q", string(text))
	}

	*l = Level(level)

	return nil
}

type LoggerConfig struct {
	LogLevel      Level  `json:"logLevel"`
	JSONLogFormat bool   `json:"jsonLogFormat"`
	AppendFile    bool   `json:"appendFile"`
	LogFilePath   string `json:"logFilePath"`
	Name          string `json:"name"`

	RotatingLogsEnabled bool `json:"rotatingLogsEnabled"`
	MaxSizeMB           int  `json:"maxSizeMB"`
	MaxBackups          int  `json:"maxBackups"`
	MaxAgeDays          int  `json:"maxAgeDays"`
	Compress            bool `json:"compress"`
}

func NewLogger(config LoggerConfig) (hclog.Logger, error) {
	var output io.Writer

	if config.RotatingLogsEnabled {
		filePath, err := getLogFilePath(config)
		if err != nil {
			return nil, err
		} else if filePath == "" {
			return nil, errRotatingWithoutFile
		}

		output = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
	} else {
		file, err := getLogFileWriter(config)
		if err != nil {
			return nil, err
		}

		if file != nil {
			output = file
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      hclog.Level(config.LogLevel),
		Output:     output,
		JSONFormat: config.JSONLogFormat,
	}), nil
}

// getLogFileWriter opens the log file, nil when no file is configured.
func getLogFileWriter(config LoggerConfig) (*os.File, error) {
	filePath, err := getLogFilePath(config)
	if err != nil || filePath == "" {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not create or open log file, %w", err)
	}

	return file, nil
}

func getLogFilePath(config LoggerConfig) (string, error) {
	filePath := strings.TrimSpace(config.LogFilePath)
	if filePath == "" {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return "", fmt.Errorf("could not create log directory, %w", err)
	}

	if !config.AppendFile {
		ext := filepath.Ext(filePath)
		timestamp := strings.NewReplacer(":", "_", "-", "_").Replace(time.Now().UTC().Format(time.RFC3339))
		filePath = strings.TrimSuffix(filePath, ext) + "_" + timestamp + ext
	}

	return filePath, nil
}
