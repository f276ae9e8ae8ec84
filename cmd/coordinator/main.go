// Copyright 2026 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novatechflow/convene/pkg/group"
	"github.com/novatechflow/convene/pkg/grouplog"
)

const (
	defaultMetricsAddr   = ":19093"
	defaultEtcdEndpoints = "http://127.0.0.1:2379"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	log, closeLog := buildGroupLog(logger)
	defer closeLog()

	cfg := group.Config{
		Shards:                  parseEnvInt("CONVENE_SHARDS", 0),
		MinSessionTimeout:       parseEnvDuration("CONVENE_MIN_SESSION_TIMEOUT", 0),
		MaxSessionTimeout:       parseEnvDuration("CONVENE_MAX_SESSION_TIMEOUT", 0),
		DefaultRebalanceTimeout: parseEnvDuration("CONVENE_DEFAULT_REBALANCE_TIMEOUT", 0),
		InitialRebalanceDelay:   parseEnvDuration("CONVENE_INITIAL_REBALANCE_DELAY", 0),
		EmptyGroupTTL:           parseEnvDuration("CONVENE_EMPTY_GROUP_TTL", 0),
		SweepInterval:           parseEnvDuration("CONVENE_SWEEP_INTERVAL", 0),
		AppendTimeout:           parseEnvDuration("CONVENE_APPEND_TIMEOUT", 0),
	}

	coordinator := group.NewCoordinator(cfg, log, nil, logger)

	var ready atomic.Bool
	startMetricsServer(ctx, envOrDefault("CONVENE_METRICS_ADDR", defaultMetricsAddr), &ready, logger)

	if err := coordinator.Start(ctx); err != nil {
		logger.Error("coordinator load failed", "error", err)
		os.Exit(1)
	}
	ready.Store(true)
	logger.Info("coordinator ready")

	<-ctx.Done()
	logger.Info("shutting down")
	coordinator.Stop()
}

func buildGroupLog(logger *slog.Logger) (grouplog.Log, func()) {
	if parseEnvBool("CONVENE_USE_MEMORY_LOG", false) {
		logger.Info("using in-memory group log", "env", "CONVENE_USE_MEMORY_LOG=1")
		return grouplog.NewMemoryLog(), func() {}
	}
	endpoints := strings.Split(envOrDefault("CONVENE_ETCD_ENDPOINTS", defaultEtcdEndpoints), ",")
	log, err := grouplog.NewEtcdLog(grouplog.EtcdConfig{
		Endpoints: endpoints,
		Username:  os.Getenv("CONVENE_ETCD_USERNAME"),
		Password:  os.Getenv("CONVENE_ETCD_PASSWORD"),
	})
	if err != nil {
		logger.Error("failed to create etcd group log", "error", err, "endpoints", endpoints)
		os.Exit(1)
	}
	logger.Info("using etcd-backed group log", "endpoints", endpoints)
	return log, func() { _ = log.Close() }
}

func startMetricsServer(ctx context.Context, addr string, ready *atomic.Bool, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "loading")
			return
		}
		fmt.Fprintln(w, "ready")
	})
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("CONVENE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler).With("component", "coordinator")
}

func envOrDefault(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		return val
	}
	return fallback
}

func parseEnvInt(name string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseEnvBool(name string, fallback bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func parseEnvDuration(name string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(name)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
