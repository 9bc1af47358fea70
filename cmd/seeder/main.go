package main

import (
	"context"
	"flag"
	"os"

	"github.com/arhyth/tellergo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// seeder prepares storage and opens the accounts listed under `seed` in the
// config file.
func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfp := flag.String("config", "config.yml", "path to configuration file")
	sqlDir := flag.String("sql", "testdata", "directory holding init_db.sql")
	flag.Parse()
	cfg, err := tellergo.LoadConfig(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if cfg.Storage.Driver == tellergo.StoragePostgres {
		lh, err := tellergo.NewLocalHelper(cfg.Storage.ConnectionString, *sqlDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("error starting local helper")
		}
		if _, err = lh.InitDB(); err != nil {
			logger.Fatal().Err(err).Msg("error initializing database")
		}
		lh.Conn.Close(context.Background())
	}

	store, closeStore, err := tellergo.OpenStore(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error opening storage")
	}
	defer closeStore()

	dir, err := tellergo.NewDirectoryFromConfig(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting directory")
	}
	persist := tellergo.NewPersisterFromConfig(store, cfg, &logger)
	if err = persist.Load(context.Background(), dir); err != nil {
		logger.Fatal().Err(err).Msg("refusing to seed over an unreadable snapshot")
	}

	for _, sa := range cfg.Seed {
		acct, err := dir.CreateAccount(tellergo.CreateAccountReq{
			Holder:         sa.Holder,
			Type:           sa.Type,
			PIN:            sa.PIN,
			InitialDeposit: decimal.NewFromFloat(sa.InitialDeposit),
		})
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("holder", sa.Holder).
				Msg("error creating seed account")
		}
		logger.Info().
			Str("holder", sa.Holder).
			Str("account", acct.Number()).
			Msg("seed account created")
	}

	if err = persist.Save(context.Background(), dir); err != nil {
		logger.Fatal().Err(err).Msg("error saving seeded accounts")
	}
}
