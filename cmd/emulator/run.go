package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/tem-emulator/internal/api"
	"github.com/nerrad567/tem-emulator/internal/bridge"
	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/config"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/database"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/influxdb"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/logging"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/mqtt"
	"github.com/nerrad567/tem-emulator/internal/lifecycle"
	"github.com/nerrad567/tem-emulator/internal/server"
	"github.com/nerrad567/tem-emulator/internal/shm"
	"github.com/nerrad567/tem-emulator/internal/simulation"
	"github.com/nerrad567/tem-emulator/internal/state"
	"github.com/nerrad567/tem-emulator/internal/telemetry"
	"github.com/nerrad567/tem-emulator/internal/wire"
	"github.com/nerrad567/tem-emulator/migrations"
)

// healthCheckTimeout bounds the startup connectivity checks.
const healthCheckTimeout = 5 * time.Second

// run wires every component and blocks until ctx is cancelled and the
// coordinator has drained. It is separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//   - configPath: Where cfg came from, for logging
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	// Registered first so it runs last.
	defer log.Close() //nolint:errcheck // Nothing left to report to

	log.Info("starting TEM emulator",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Sockets bound during startup belong to this function until the
	// coordinator runs; a failed startup releases them.
	var bound boundSockets
	started := false
	defer func() {
		if !started {
			bound.release(log)
		}
	}()

	// Settings store (optional)
	var (
		db       *database.DB
		settings simulation.SettingsStore
	)
	if cfg.State.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.State.Path,
			WALMode:     cfg.State.WALMode,
			BusyTimeout: cfg.State.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		applied, migrateErr := db.Migrate(ctx, migrations.FS)
		if migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("settings store ready", "path", db.Path(), "migrations_applied", applied)
		settings = state.NewStore(db.DB)
	} else {
		log.Info("settings store disabled; device state resets on restart")
	}

	codec, err := wire.CodecByName(cfg.Server.Codec)
	if err != nil {
		return err
	}

	broker := shm.NewBroker(cfg.SharedMemory.Dir, cfg.SharedMemory.Identifier)
	broker.SetLogger(log.With("component", "shm"))

	coord := lifecycle.New()
	coord.SetLogger(log.With("component", "lifecycle"))
	coord.OnRelease(broker.Release)

	registrations, err := addDevices(ctx, coord, &bound, cfg, codec, broker, settings, log)
	if err != nil {
		return err
	}

	// MQTT bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startBridge(coord, cfg, registrations, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		sources := make([]telemetry.Source, len(registrations))
		for i, reg := range registrations {
			sources[i] = reg
		}
		reporter := telemetry.NewReporter(telemetry.Config{
			Writer:   influxClient,
			Sources:  sources,
			Segment:  broker,
			Interval: cfg.InfluxDB.SampleInterval,
		})
		reporter.SetLogger(log.With("component", "telemetry"))
		coord.Add(reporter)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("telemetry disabled")
	}

	// Admin API (optional)
	if cfg.API.Enabled {
		devices := make([]api.Device, len(registrations))
		for i, reg := range registrations {
			devices[i] = reg
		}
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Devices: devices,
			State:   func() string { return coord.State().String() },
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if bindErr := apiServer.Bind(ctx); bindErr != nil {
			return bindErr
		}
		bound = append(bound, apiServer)
		coord.Add(apiServer)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	started = true
	if err := coord.Run(ctx); err != nil {
		return err
	}

	// Deferred Close() calls run in reverse order:
	// InfluxDB, MQTT, database, then the log file.
	log.Info("TEM emulator stopped")
	return nil
}

// addDevices creates the registration, worker and listener of every enabled
// device and adds them to the coordinator. Listeners are bound here so a
// port conflict fails startup before anything runs.
func addDevices(
	ctx context.Context,
	coord *lifecycle.Coordinator,
	bound *boundSockets,
	cfg *config.Config,
	codec wire.Codec,
	broker *shm.Broker,
	settings simulation.SettingsStore,
	log *logging.Logger,
) ([]*dispatch.Registration, error) {
	var (
		registrations []*dispatch.Registration
		instrument    *dispatch.Registration
	)

	add := func(reg *dispatch.Registration, port int, sink dispatch.PayloadSink) error {
		devLog := log.With("device", reg.Label())

		worker := dispatch.NewWorker(reg, sink)
		worker.SetLogger(devLog)

		listener := server.NewListener(reg, server.Config{
			Host:         cfg.Server.Host,
			Port:         port,
			PollInterval: cfg.Server.PollInterval,
			MaxFrameSize: cfg.Server.MaxFrameSize,
			Codec:        codec,
			Serial:       cfg.Server.Serial,
		})
		listener.SetLogger(devLog)
		if err := listener.Bind(ctx); err != nil {
			return err
		}
		*bound = append(*bound, listener)

		coord.Add(worker, listener)
		coord.AwaitReady(reg.Ready())
		registrations = append(registrations, reg)
		log.Info("device configured", "device", reg.Label(), "address", listener.Addr().String())
		return nil
	}

	if inst := cfg.Devices.Instrument; inst.Enabled {
		instrument = dispatch.NewRegistration(inst.Label, func(ctx context.Context) (device.Device, error) {
			m, err := simulation.NewMicroscope(ctx, simulation.MicroscopeOptions{
				Label:  inst.Label,
				Store:  settings,
				Logger: log.With("device", inst.Label),
			})
			if err != nil {
				return nil, err
			}
			return m, nil
		}, cfg.Server.QueueCapacity)

		if err := add(instrument, inst.Port, nil); err != nil {
			return nil, err
		}
	}

	if sens := cfg.Devices.Sensor; sens.Enabled {
		reg := dispatch.NewRegistration(sens.Label, func(ctx context.Context) (device.Device, error) {
			if err := instrument.WaitReady(ctx); err != nil {
				return nil, err
			}
			c, err := simulation.NewCamera(simulation.CameraOptions{
				Width:           sens.Width,
				Height:          sens.Height,
				DefaultExposure: sens.DefaultExposure,
				Realtime:        sens.RealtimeExposure,
				Instrument:      instrument,
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		}, cfg.Server.QueueCapacity)

		if err := add(reg, sens.Port, broker); err != nil {
			return nil, err
		}
	}

	return registrations, nil
}

// startBridge connects to the MQTT broker and adds the command bridge.
// Lifecycle transitions are published on the system status topic.
func startBridge(coord *lifecycle.Coordinator, cfg *config.Config, registrations []*dispatch.Registration, log *logging.Logger) (*mqtt.Client, error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	devices := make([]bridge.Device, len(registrations))
	for i, reg := range registrations {
		devices[i] = reg
	}
	b, err := bridge.NewBridge(bridge.Options{
		Publisher:      mqttClient,
		Topics:         mqttClient.Topics(),
		Devices:        devices,
		QoS:            byte(cfg.MQTT.QoS),
		HealthInterval: cfg.MQTT.HealthInterval,
		Version:        version,
		Logger:         log.With("component", "bridge"),
	})
	if err != nil {
		_ = mqttClient.Close()
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}

	// A reconnect may follow the will having replaced the retained state.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if err := b.PublishSystemState(coord.State().String()); err != nil {
			log.Warn("failed to republish lifecycle state", "error", err)
		}
	})

	coord.Add(b)
	coord.OnStateChange(func(s lifecycle.State) {
		if err := b.PublishSystemState(s.String()); err != nil {
			log.Warn("failed to publish lifecycle state", "state", s.String(), "error", err)
		}
	})
	log.Info("MQTT bridge configured",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"prefix", cfg.MQTT.TopicPrefix,
	)
	return mqttClient, nil
}

// boundSockets are listeners bound ahead of coordinator start.
type boundSockets []interface{ Unbind() error }

func (b boundSockets) release(log *logging.Logger) {
	for _, s := range b {
		if err := s.Unbind(); err != nil {
			log.Warn("releasing socket after failed startup", "error", err)
		}
	}
}

// healthCheck verifies the optional infrastructure connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Settings database (may be nil if disabled)
//   - mqttClient: MQTT client (may be nil if disabled)
//   - influxClient: InfluxDB client (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
