package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arhyth/tellergo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

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
		logger.Warn().Err(err).Msg("continuing with empty accounts")
	}

	sess, err := tellergo.NewSessions(cfg.Security.TokenSecret, cfg.Security.TokenTTL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting sessions")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := tellergo.Chain(
		tellergo.NewService(dir, persist, &logger),
		tellergo.NewInstrumentingMiddleware(tellergo.NewServiceMetrics(reg)),
		tellergo.NewValidationMiddleware(),
	)
	hndlr := tellergo.NewHTTPHandler(svc, tellergo.HTTPOpts{
		Sessions:       sess,
		MaxInFlight:    cfg.Server.MaxInFlight,
		AcquireTimeout: cfg.Server.AcquireTimeout,
		Gatherer:       reg,
		Log:            &logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           hndlr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(ctx); err != nil {
		logger.Err(err).Msg("error shutting down server")
	}
	if err = persist.Save(ctx, dir); err != nil {
		logger.Err(err).Msg("final save failed")
	}
}
