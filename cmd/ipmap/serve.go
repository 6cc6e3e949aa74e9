package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/matter-ipmap/internal/api"
	"github.com/nerrad567/matter-ipmap/internal/delivery"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/config"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/logging"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/mqtt"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var interval int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest mapping over HTTP and refresh it periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := root.loadConfig(func(c *config.Config) {
				if cmd.Flags().Changed("interval") {
					c.Schedule.Interval = interval
				}
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, path)
		},
	}

	cmd.Flags().IntVar(&interval, "interval", 0, "Seconds between scheduled runs (0 runs once at startup)")
	return cmd
}

// serve runs until ctx is cancelled: an initial run, the schedule, the API
// and, with MQTT enabled, the refresh command topic.
func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting ipmap serve",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Runner:   a.runner,
		History:  a.history,
		Checks:   a.checks,
		Version:  version,
	}
	if a.db != nil {
		deps.DB = a.db.DB
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		log.Warn("API authentication disabled (security.jwt.secret not set)")
	}

	var wg sync.WaitGroup

	refresh := newTrigger()
	wg.Add(1)
	go func() {
		defer wg.Done()
		refresh.loop(ctx, a.runner, log)
	}()

	if a.mqtt != nil {
		topic := mqtt.Topics{}.Refresh()
		subErr := a.mqtt.Subscribe(topic, byte(cfg.MQTT.QoS), func(_ string, _ []byte) error {
			refresh.Fire()
			return nil
		})
		if subErr != nil {
			log.Warn("refresh command unavailable", "topic", topic, "error", subErr)
		} else {
			log.Info("listening for refresh commands", "topic", topic)
		}
	}

	interval := time.Duration(cfg.Schedule.Interval) * time.Second
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runner.RunEvery(ctx, interval)
	}()
	log.Info("initialisation complete", "interval", interval)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	wg.Wait()

	log.Info("ipmap stopped")
	return nil
}

// trigger coalesces refresh requests: requests arriving while a run is
// pending collapse into that run.
type trigger struct {
	ch chan struct{}
}

func newTrigger() *trigger {
	return &trigger{ch: make(chan struct{}, 1)}
}

// Fire requests a run without blocking.
func (t *trigger) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// executor is the part of the runner the trigger drives.
type executor interface {
	Execute(ctx context.Context) (delivery.Run, error)
}

func (t *trigger) loop(ctx context.Context, r executor, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.ch:
			if _, err := r.Execute(ctx); err != nil && ctx.Err() == nil {
				log.Warn("requested run incomplete", "error", err)
			}
		}
	}
}
