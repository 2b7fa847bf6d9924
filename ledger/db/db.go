package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ethernal-Tech/chronicle/common"
	"github.com/Ethernal-Tech/chronicle/ledger"
	ledgerbbolt "github.com/Ethernal-Tech/chronicle/ledger/db/bbolt"
	ledgerleveldb "github.com/Ethernal-Tech/chronicle/ledger/db/leveldb"
	ledgerpostgres "github.com/Ethernal-Tech/chronicle/ledger/db/postgres"
	"github.com/hashicorp/go-hclog"
)

const (
	TypeBBolt    = "bbolt"
	TypeLevelDB  = "leveldb"
	TypePostgres = "postgres"

	defaultOpenTimeout = 5 * time.Second
)

var (
	ErrUnknownType = errors.New("unknown database type")
	ErrNoDatabase  = errors.New("database is not open")
)

type Config struct {
	Type string `json:"type"`
	// Path of the embedded store file or directory.
	Path string `json:"path"`
	// URL is the connection string of the postgres store.
	URL string `json:"url"`
	// OpenTimeout bounds a single open attempt, including the wait for a file lock.
	OpenTimeout common.Duration `json:"openTimeout"`
	// RetryCount and RetryWaitTime bound the attempts to open a store that is transiently unavailable.
	RetryCount    int             `json:"retryCount"`
	RetryWaitTime common.Duration `json:"retryWaitTime"`
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Type) {
	case "", TypeBBolt, TypeLevelDB:
		if c.Path == "" {
			return fmt.Errorf("database path is required for %s", c.typeName())
		}
	case TypePostgres:
		if c.URL == "" {
			return errors.New("database url is required for postgres")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, c.Type)
	}

	return nil
}

func (c Config) typeName() string {
	if c.Type == "" {
		return TypeBBolt
	}

	return strings.ToLower(c.Type)
}

// NewDatabase opens the store selected by config.Type, bbolt when empty. Opening is retried
// while it fails with a transient *ledger.PersistenceError.
func NewDatabase(ctx context.Context, config Config, logger hclog.Logger) (ledger.Database, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	openTimeout := config.OpenTimeout.Duration()
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	options := []common.RetryConfigOption{
		common.WithLogger(logger),
		common.WithIsRetryableError(ledger.IsTransientError),
	}

	if config.RetryCount > 0 {
		options = append(options, common.WithRetryCount(config.RetryCount))
	}

	if config.RetryWaitTime > 0 {
		options = append(options, common.WithRetryWaitTime(config.RetryWaitTime.Duration()))
	}

	db, err := common.ExecuteWithRetry(ctx, func(ctx context.Context) (ledger.Database, error) {
		return open(ctx, config, openTimeout)
	}, options...)
	if err != nil {
		return nil, err
	}

	logger.Info("Database opened", "type", config.typeName())

	return db, nil
}

func open(ctx context.Context, config Config, timeout time.Duration) (ledger.Database, error) {
	if config.typeName() != TypePostgres {
		if err := common.CreateDirSafe(filepath.Dir(config.Path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	switch config.typeName() {
	case TypeLevelDB:
		return ledgerleveldb.NewDatabase(config.Path)
	case TypePostgres:
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return ledgerpostgres.NewDatabase(ctx, config.URL)
	default:
		return ledgerbbolt.NewDatabase(config.Path, timeout)
	}
}
