package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sessionworks/cookiewatch/coordinator"
	"github.com/sessionworks/cookiewatch/discovery"
	"github.com/sessionworks/cookiewatch/metrics"
	"github.com/sessionworks/cookiewatch/refresh"
	"github.com/sessionworks/cookiewatch/tabstore"
	"github.com/sessionworks/cookiewatch/tabstore/redisstore"
)

var watchFlags struct {
	pluginID    string
	baseURL     string
	path        string
	redisAddr   string
	metricsAddr string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a refresh coordination session until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchFlags.pluginID, "plugin-id", "", "Plugin id to refresh the cookie for (required)")
	watchCmd.Flags().StringVar(&watchFlags.baseURL, "base-url", "", "Base URL of the plugin backend (required)")
	watchCmd.Flags().StringVar(&watchFlags.path, "path", refresh.DefaultPath, "Refresh endpoint path")
	watchCmd.Flags().StringVar(&watchFlags.redisAddr, "redis", "localhost:6379", "Redis address for the shared expiry bucket")
	watchCmd.Flags().StringVar(&watchFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	_ = watchCmd.MarkFlagRequired("plugin-id")
	_ = watchCmd.MarkFlagRequired("base-url")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context) error {
	figure.NewFigure("cookiewatch", "cybermedium", true).Print()
	logger := newLogger()

	resolver := discovery.NewStatic()
	if err := resolver.Register(watchFlags.pluginID, watchFlags.baseURL); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: watchFlags.redisAddr})
	defer rdb.Close()
	store := redisstore.New(rdb,
		tabstore.BucketName(watchFlags.pluginID),
		redisstore.WithLogger(logger),
	)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("build cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	if watchFlags.metricsAddr != "" {
		go serveMetrics(watchFlags.metricsAddr)
	}

	session, err := coordinator.New(coordinator.Config{
		PluginID: watchFlags.pluginID,
		Path:     watchFlags.path,
		Resolver: resolver,
		Client:   client,
		Store:    store,
		Logger:   logger,
		Metrics:  metrics.NewRecorder(prometheus.DefaultRegisterer, watchFlags.pluginID),
		OnUpdate: func(snap coordinator.Snapshot) {
			ev := logger.Info().Str("status", string(snap.Status))
			if snap.Err != nil {
				ev = ev.Err(snap.Err)
			}
			if snap.Result != nil {
				ev = ev.Time("expires_at", snap.Result.ExpiresAt)
			}
			ev.Msg("session update")
		},
	})
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(runCtx); err != nil {
		return err
	}
	logger.Info().Str("plugin_id", watchFlags.pluginID).Msg("watching, press ctrl-c to stop")

	<-runCtx.Done()
	return session.Stop()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	// Best effort; the watcher keeps running if the metrics port is taken.
	_ = http.ListenAndServe(addr, mux)
}
