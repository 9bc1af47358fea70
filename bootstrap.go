package tellergo

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NewDirectoryFromConfig builds an empty directory using cfg's account
// settings and admin secret.
func NewDirectoryFromConfig(cfg Config, log *zerolog.Logger) (*Directory, error) {
	node, err := snowflake.NewNode(cfg.Accounts.Node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return NewDirectory(DirectoryOpts{
		AdminPIN:       AdminPIN(cfg.Admin.PIN),
		Node:           node,
		PINCost:        cfg.Security.PINCost,
		SavingsRate:    decimal.NewFromFloat(cfg.Accounts.SavingsRate),
		CheckingRate:   decimal.NewFromFloat(cfg.Accounts.CheckingRate),
		NumberAttempts: cfg.Accounts.NumberAttempts,
		Log:            log,
	})
}

// OpenStore returns the configured Store and a function releasing it.
func OpenStore(cfg Config, log *zerolog.Logger) (Store, func(), error) {
	switch cfg.Storage.Driver {
	case StoragePostgres:
		pg, err := NewPostgresStore(cfg.Storage.ConnectionString, log)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case StorageFile:
		return NewFileStore(cfg.Storage.Path), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func NewPersisterFromConfig(store Store, cfg Config, log *zerolog.Logger) *Persister {
	return NewPersister(store, PersisterOpts{
		Timeout:     cfg.Storage.Timeout,
		MaxFailures: cfg.Storage.MaxFailures,
		OpenFor:     cfg.Storage.OpenFor,
	}, log)
}
