package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arhyth/tellergo"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()
	cfg, err := tellergo.LoadConfig(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

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
		fmt.Println("Error loading accounts data, starting with empty accounts.")
	}

	svc := tellergo.Chain(
		tellergo.NewService(dir, persist, &logger),
		tellergo.NewValidationMiddleware(),
	)
	shell := tellergo.NewShell(svc, os.Stdin, os.Stdout, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := run(ctx, shell, func() error {
		return persist.Save(context.Background(), dir)
	})
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Msg("teller stopped")
	}
}

type runner interface {
	Run() error
}

// run drives the shell until it returns or ctx is done, then saves once.
// On cancellation the shell goroutine is left blocked on its input.
func run(ctx context.Context, shell runner, save func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- shell.Run()
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		fmt.Println()
		runErr = ctx.Err()
	}
	if err := save(); err != nil {
		fmt.Println("Error saving accounts data.")
	}
	return runErr
}
