package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/nhle/complaint-desk/internal/api"
	"github.com/nhle/complaint-desk/internal/app"
	"github.com/nhle/complaint-desk/internal/cache"
	"github.com/nhle/complaint-desk/internal/credential"
	"github.com/nhle/complaint-desk/internal/logging"
	"github.com/nhle/complaint-desk/internal/metrics"
	"github.com/nhle/complaint-desk/internal/model"
	"github.com/nhle/complaint-desk/internal/session"
	"github.com/nhle/complaint-desk/internal/store"
	appsync "github.com/nhle/complaint-desk/internal/sync"
	"github.com/nhle/complaint-desk/internal/ui/complaintlist"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "complaintdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", model.DefaultConfigPath(), "path to the config file")
	baseURL := pflag.String("base-url", "", "override api.base_url")
	logLevel := pflag.String("log-level", "", "override log.level")
	pflag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(*baseURL, "/")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, m, log)
		defer shutdown(srv)
	}

	ring, err := credential.Open(model.ConfigDir())
	if err != nil {
		return err
	}
	sess := session.New(ring, session.WithLogger(log))
	if err := sess.Load(); err != nil {
		log.WithError(err).Warn("stored token unusable")
	}
	if tok := os.Getenv("COMPLAINTDESK_TOKEN"); tok != "" {
		if err := sess.SetToken(tok); err != nil {
			return fmt.Errorf("COMPLAINTDESK_TOKEN: %w", err)
		}
	}

	client := api.NewClient(cfg.API.BaseURL, sess,
		api.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		api.WithLogger(log),
		api.WithMetrics(m),
		api.OnUnauthorized(sess.Invalidate),
	)

	storeOpts := []store.Option{store.WithLogger(log), store.WithMetrics(m)}
	var prefs complaintlist.FilterPrefs
	if cfg.Cache.Enabled {
		c, err := cache.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			log.WithError(err).Warn("cache disabled")
		} else {
			defer c.Close()
			storeOpts = append(storeOpts, store.WithSnapshots(c))
			prefs = c
		}
	}

	complaints := store.NewComplaintStore(client, storeOpts...)
	categories := store.NewCategoryStore(client, storeOpts...)
	if _, err := categories.Restore(context.Background()); err != nil {
		log.WithError(err).Warn("restoring category snapshot")
	}

	poller := appsync.New(log)
	poller.Register(appsync.SourceComplaints, complaints.Changed(), nil)
	poller.Register(appsync.SourceCategories, categories.Changed(), func(ctx context.Context) error {
		_, err := categories.List(ctx)
		return err
	})
	poller.Register(appsync.SourceSession, nil, nil)

	sess.OnInvalidate(func() {
		complaints.Cancel()
		categories.Cancel()
		poller.Notify(appsync.SourceSession)
	})

	root := app.New(app.Deps{
		Complaints: complaints,
		Categories: categories,
		Session:    sess,
		Prefs:      prefs,
		Poller:     poller,
		Config:     cfg,
		Logger:     log,
	})

	log.WithField("base_url", cfg.API.BaseURL).Info("starting")
	if _, err := tea.NewProgram(root, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, log *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
