package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/api"
	"github.com/nerrad567/matter-ipmap/internal/delivery"
	"github.com/nerrad567/matter-ipmap/internal/history"
	"github.com/nerrad567/matter-ipmap/internal/homeassistant"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/config"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/database"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/influxdb"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/logging"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/mqtt"
	"github.com/nerrad567/matter-ipmap/internal/mapper"
	"github.com/nerrad567/matter-ipmap/internal/runner"
	"github.com/nerrad567/matter-ipmap/migrations"
)

// app holds every component built from the configuration.
type app struct {
	cfg        *config.Config
	log        *logging.Logger
	runner     *runner.Runner
	dispatcher *delivery.Dispatcher
	history    history.Repository
	db         *database.DB
	mqtt       *mqtt.Client
	checks     map[string]api.HealthChecker

	// closers run in reverse order on Close.
	closers []func()
}

// newApp connects the configured backends and wires the runner. Anything
// already opened is closed again when a later step fails.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (_ *app, err error) {
	a := &app{
		cfg:        cfg,
		log:        log,
		dispatcher: delivery.NewDispatcher(),
		checks:     make(map[string]api.HealthChecker),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.dispatcher.SetLogger(log)

	var haClient *homeassistant.Client
	if cfg.HomeAssistant.URL != "" {
		haClient, err = homeassistant.New(homeassistant.Config{
			URL:                cfg.HomeAssistant.URL,
			Token:              cfg.HomeAssistant.Token,
			InsecureSkipVerify: cfg.HomeAssistant.InsecureSkipVerify,
			Timeout:            time.Duration(cfg.HomeAssistant.Timeout) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("creating Home Assistant client: %w", err)
		}
		haClient.SetLogger(log)
	}

	var source runner.SnapshotSource
	if cfg.HomeAssistant.SnapshotFile != "" {
		source = runner.FileSource{Path: cfg.HomeAssistant.SnapshotFile}
		log.Info("inventory source", "snapshot_file", cfg.HomeAssistant.SnapshotFile)
	} else {
		source = haClient
		log.Info("inventory source", "homeassistant", cfg.HomeAssistant.URL)
	}

	if cfg.Output.Enabled {
		a.dispatcher.Add(delivery.NewFileSink(cfg.Output.Dir))
	}

	if err = a.openHistory(ctx); err != nil {
		return nil, err
	}
	if err = a.connectMQTT(); err != nil {
		return nil, err
	}
	if err = a.connectInfluxDB(); err != nil {
		return nil, err
	}

	m := mapper.New(mapper.Options{
		SourceMarker: cfg.Matching.SourceMarker,
		TargetMarker: cfg.Matching.TargetMarker,
		Threshold:    cfg.Matching.Threshold,
	})
	m.SetLogger(log)

	a.runner = runner.New(source, m, a.dispatcher)
	a.runner.SetLogger(log)

	if cfg.Notification.Enabled && haClient != nil {
		notify := delivery.NewNotificationSink(haClient, cfg.Notification.ID)
		a.dispatcher.Add(notify)
		a.runner.SetFailureNotifier(notify)
	}

	log.Info("delivery configured", "sinks", a.dispatcher.Names())
	return a, nil
}

func (a *app) openHistory(ctx context.Context) error {
	if !a.cfg.Database.Enabled {
		a.log.Info("run history disabled")
		return nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.onClose(func() {
		a.log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			a.log.Error("error closing database", "error", closeErr)
		}
	})
	a.log.Info("database connected", "path", a.cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	a.db = db
	a.history = history.NewSQLiteRepository(db.DB)
	a.checks["database"] = db
	a.dispatcher.Add(delivery.NewHistorySink(a.history))
	return nil
}

func (a *app) connectMQTT() error {
	if !a.cfg.MQTT.Enabled {
		a.log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.onClose(func() {
		a.log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			a.log.Error("error closing MQTT", "error", closeErr)
		}
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)

	client.SetLogger(a.log)
	client.SetOnConnect(func() {
		a.log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("MQTT disconnected", "error", err)
	})

	a.mqtt = client
	a.checks["mqtt"] = client
	sink := delivery.NewMQTTSink(client, byte(a.cfg.MQTT.QoS))
	sink.SetLogger(a.log)
	a.dispatcher.Add(sink)
	return nil
}

func (a *app) connectInfluxDB() error {
	if !a.cfg.InfluxDB.Enabled {
		a.log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(a.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	a.onClose(func() {
		a.log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			a.log.Error("error closing InfluxDB", "error", closeErr)
		}
	})
	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"org", a.cfg.InfluxDB.Org,
		"bucket", a.cfg.InfluxDB.Bucket,
	)

	a.checks["influxdb"] = client
	a.dispatcher.Add(delivery.NewInfluxSink(client))
	return nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases every backend in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
