package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/echo-callback/internal/config"
	"github.com/matheuscscp/echo-callback/internal/logging"
	"github.com/matheuscscp/echo-callback/internal/server"
	"github.com/matheuscscp/echo-callback/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := logging.LoadLevel(); err != nil {
		logrus.WithError(err).Fatal("failed to load log level")
	}

	conf, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	st := store.NewMemoryStore(
		store.WithTTL(conf.Registry.SlotTTL),
		store.WithMaxSize(conf.Registry.MaxSlots),
		store.WithRegisterer(prometheus.DefaultRegisterer))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Go(func() { store.RunSweeper(ctx, st, conf.Registry.SweepInterval) })

	s := server.New(conf, st, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	serveErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":     conf.Server.Addr,
			"slotTTL":  conf.Registry.SlotTTL.String(),
			"maxSlots": conf.Registry.MaxSlots,
		}).Info("server started")
		serveErr <- s.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("server failed")
		}
		stop()
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("failed to shut down server")
	}
	wg.Wait()
	logrus.Info("server stopped")
}
