// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flymesh/chessrelay/internal/acceptor"
	"github.com/flymesh/chessrelay/internal/config"
	"github.com/flymesh/chessrelay/internal/connection"
	"github.com/flymesh/chessrelay/internal/errlog"
	"github.com/flymesh/chessrelay/internal/game"
	"github.com/flymesh/chessrelay/internal/lobby"
	"github.com/flymesh/chessrelay/internal/logging"
	"github.com/flymesh/chessrelay/internal/metrics"
)

func main() {
	cfg := config.Parse()

	errSink, err := errlog.Open(cfg.ErrorLogPath)
	if err != nil {
		panic(err)
	}
	defer errSink.Close()

	logger := logging.New(errSink)
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	lb := lobby.New(cfg.LobbyCapacity, cfg.PairRequestTimeout, logger.Named("lobby"), m)
	lb.SetStartGame(func(a, b *connection.Connection) {
		game.Start(a, b, lb.Return, logger.Named("game"), m)
	})
	go lb.Run()

	acc := acceptor.New(cfg.Listen, lb, logger.Named("acceptor"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		return acc.Run(ctx)
	})
	g.Go(func() error {
		return runMetricsServer(ctx, cfg.MetricsListen, registry, logger.Named("metrics"))
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}
}

func runMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
