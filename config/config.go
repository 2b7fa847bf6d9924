// Package config resolves the node configuration from a JSON file, the environment and flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Ethernal-Tech/chronicle/api"
	"github.com/Ethernal-Tech/chronicle/common"
	"github.com/Ethernal-Tech/chronicle/ledger/db"
	"github.com/Ethernal-Tech/chronicle/logger"
	"github.com/Ethernal-Tech/chronicle/upstream"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

const (
	// EnvConfigPath names the config file when no --config flag is given.
	EnvConfigPath = "CONFIG_PATH"

	defaultDatabasePath          = "chronicle.db"
	defaultDatabaseRetryCount    = 5
	defaultDatabaseRetryWaitTime = 2 * time.Second
	defaultListenerRetryInterval = 5 * time.Second
	defaultWorkerRetryInterval   = time.Second
)

type Config struct {
	Database              db.Config           `json:"database"`
	Upstream              upstream.Config     `json:"upstream"`
	API                   api.Config          `json:"api"`
	Logger                logger.LoggerConfig `json:"logger"`
	ListenerRetryInterval common.Duration     `json:"listenerRetryInterval"`
	WorkerRetryInterval   common.Duration     `json:"workerRetryInterval"`
}

func Default() Config {
	return Config{
		Database: db.Config{
			Type:          db.TypeBBolt,
			Path:          defaultDatabasePath,
			RetryCount:    defaultDatabaseRetryCount,
			RetryWaitTime: common.Duration(defaultDatabaseRetryWaitTime),
		},
		Upstream: upstream.DefaultConfig(),
		API:      api.DefaultConfig(),
		Logger: logger.LoggerConfig{
			LogLevel:   logger.Level(hclog.Info),
			AppendFile: true,
			Name:       "chronicle",
		},
		ListenerRetryInterval: common.Duration(defaultListenerRetryInterval),
		WorkerRetryInterval:   common.Duration(defaultWorkerRetryInterval),
	}
}

// FromFile reads a JSON config. Settings missing from the file keep their defaults.
func FromFile(path string) (Config, error) {
	config := Default()

	bytes, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(bytes, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return config, nil
}

// WriteFile stores the config as indented JSON.
func (c Config) WriteFile(path string) error {
	bytes, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return err
	}

	return common.SaveFileSafe(path, bytes, 0660)
}

// Validate checks everything the node cannot start without. The node address is validated
// by the listener, which decides how the node reacts to it.
func (c Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if err := c.API.Validate(); err != nil {
		return err
	}

	if c.Upstream.ConfirmationCount < 0 || c.Upstream.MilestoneInterval < 0 {
		return errors.New("confirmation count and milestone interval must not be negative")
	}

	if _, _, _, err := c.Upstream.StartPoint(); err != nil {
		return err
	}

	if c.ListenerRetryInterval < 0 || c.WorkerRetryInterval < 0 {
		return errors.New("retry intervals must not be negative")
	}

	return nil
}

// Flags are the command line options of the node. They are registered on the persistent
// flag set of the root command.
type Flags struct {
	set *pflag.FlagSet

	ConfigPath  string
	WriteConfig string

	dbType       string
	dbPath       string
	dbURL        string
	nodeAddress  string
	networkMagic uint32
	apiAddress   string
	logLevel     string
	logFile      string
}

func NewFlags(set *pflag.FlagSet) *Flags {
	f := &Flags{set: set}

	set.StringVar(&f.ConfigPath, "config", "", "path of the JSON config file, "+EnvConfigPath+" when empty")
	set.StringVar(&f.WriteConfig, "write-config", "", "write the resolved config to this path and exit")
	set.StringVar(&f.dbType, "db-type", "", "database type: bbolt, leveldb or postgres")
	set.StringVar(&f.dbPath, "db-path", "", "path of the embedded database")
	set.StringVar(&f.dbURL, "db-url", "", "postgres connection string")
	set.StringVar(&f.nodeAddress, "node-address", "", "upstream node address, host:port or unix socket path")
	set.Uint32Var(&f.networkMagic, "network-magic", 0, "upstream network magic")
	set.StringVar(&f.apiAddress, "api-address", "", "query server listen address")
	set.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	set.StringVar(&f.logFile, "log-file", "", "log file path, stderr when empty")

	return f
}

// Resolve loads the config file named by --config or the environment, the defaults when
// neither is set, and applies the flags given on the command line on top.
func (f *Flags) Resolve(getenv func(string) string) (Config, error) {
	config := Default()

	path := f.ConfigPath
	if path == "" {
		path = getenv(EnvConfigPath)
	}

	if path != "" {
		var err error
		if config, err = FromFile(path); err != nil {
			return config, err
		}
	}

	var err error

	// Changed lives on the flag itself, the command may have parsed it through a merged set
	f.set.VisitAll(func(fl *pflag.Flag) {
		if err == nil && fl.Changed {
			err = f.apply(&config, fl.Name)
		}
	})

	if err != nil {
		return config, err
	}

	return config, config.Validate()
}

func (f *Flags) apply(config *Config, name string) error {
	switch name {
	case "db-type":
		config.Database.Type = f.dbType
	case "db-path":
		config.Database.Path = f.dbPath
	case "db-url":
		config.Database.URL = f.dbURL
	case "node-address":
		config.Upstream.NodeAddress = f.nodeAddress
	case "network-magic":
		config.Upstream.NetworkMagic = f.networkMagic
	case "api-address":
		config.API.ListenAddress = f.apiAddress
	case "log-level":
		return config.Logger.LogLevel.UnmarshalText([]byte(f.logLevel))
	case "log-file":
		config.Logger.LogFilePath = f.logFile
	}

	return nil
}
