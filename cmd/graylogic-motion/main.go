// Gray Logic Motion - motorized drive coordination
//
// This is the main entry point of a motion node. A node drives one local
// drive over Modbus TCP and talks to other nodes over MQTT: as master it
// mirrors its setpoints onto its slaves, as slave it follows a master, and
// standalone it only serves its own drive.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-motion/internal/api"
	"github.com/nerrad567/gray-logic-motion/internal/command"
	"github.com/nerrad567/gray-logic-motion/internal/correlation"
	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/driver/modbus"
	"github.com/nerrad567/gray-logic-motion/internal/driver/remote"
	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
	"github.com/nerrad567/gray-logic-motion/internal/router"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
	"github.com/nerrad567/gray-logic-motion/internal/telemetry"
	"github.com/nerrad567/gray-logic-motion/internal/transport"
	"github.com/nerrad567/gray-logic-motion/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Motion",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	self := message.Address{Host: cfg.Machine.Host, Port: cfg.Machine.Port}
	node := mqtt.Topics{}.NodeID(self.String())

	// Database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Telemetry backends
	var prom *metrics.Metrics
	if cfg.Metrics.Enabled {
		if prom, err = metrics.New(cfg.Metrics.Namespace); err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
	}

	var writer telemetry.Writer
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, node)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		writer = influxClient
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}
	recorder := telemetry.New(prom, writer)

	// MQTT transport
	mqttClient, err := mqtt.Connect(cfg.MQTT, node)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port), "node", node)

	tr := transport.NewMQTT(mqttClient, self, byte(cfg.MQTT.QoS))
	tr.SetLogger(log.Component("transport"))

	engine := correlation.New(correlation.Options{
		Sender:   tr,
		Local:    self,
		Timeout:  cfg.Machine.ReplyTimeout,
		Observer: recorder,
		Logger:   log.Component("correlation"),
	})
	defer engine.Close()

	// Drivers
	nmap, err := loadNetdataMap(cfg.Drive.NetdataMap)
	if err != nil {
		return err
	}
	retry := driver.RetryPolicy{
		Tries:   cfg.Drive.Connect.Tries,
		Wait:    cfg.Drive.Connect.Wait,
		Backoff: cfg.Drive.Connect.Backoff,
	}
	drivers := driver.NewRegistry()
	drivers.Register(driver.TypeModbus, modbus.Factory(nmap, retry, recorder, log.Component("modbus")))
	drivers.Register(driver.TypeRemote, remote.Factory(engine, recorder))

	localType, err := driver.ParseType(cfg.Drive.Driver)
	if err != nil {
		return fmt.Errorf("drive.driver: %w", err)
	}
	local, err := drivers.New(localType, driver.Config{
		Host:    cfg.Drive.Host,
		Port:    cfg.Drive.Port,
		UnitID:  uint8(cfg.Drive.UnitID),
		Timeout: cfg.Drive.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating local driver: %w", err)
	}

	// Machine
	m, err := machine.New(machine.Options{
		Serialnumber:    cfg.Machine.Serialnumber,
		Address:         self,
		Version:         version,
		Driver:          local,
		Drivers:         drivers,
		Engine:          engine,
		State:           slave.NewSharedState(),
		Repository:      slave.NewSQLiteRepository(db.DB),
		Telemetry:       recorder,
		RefreshInterval: cfg.Machine.RefreshInterval,
		SlaveTimeout:    cfg.Machine.SlaveTimeout,
		Logger:          log.Component("machine"),
	})
	if err != nil {
		return fmt.Errorf("creating machine: %w", err)
	}
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("starting machine: %w", err)
	}
	defer func() {
		log.Info("stopping machine")
		if stopErr := m.Stop(); stopErr != nil {
			log.Error("error stopping machine", "error", stopErr)
		}
	}()

	// Commands
	r := router.New()
	r.SetLogger(log.Component("router"))
	dispatcher, err := command.NewDispatcher(command.Options{
		Machine: m,
		Router:  r,
		Logger:  log.Component("command"),
	})
	if err != nil {
		return fmt.Errorf("creating command dispatcher: %w", err)
	}
	if err := dispatcher.RegisterTimeoutReset(); err != nil {
		return err
	}
	if err := dispatcher.Register(command.Commands(m)...); err != nil {
		return err
	}
	dispatcher.Start()
	defer dispatcher.Stop()
	m.SetHandler(dispatcher)

	if err := tr.Start(recorder.CountMessages(m)); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	defer func() {
		if stopErr := tr.Stop(); stopErr != nil {
			log.Error("error stopping transport", "error", stopErr)
		}
	}()
	log.Info("listening for commands", "inbox", tr.Inbox())

	// Slaves and initial mode
	static, err := staticSlaves(cfg.Slaves)
	if err != nil {
		return err
	}
	if loadErr := m.LoadSlaves(ctx, static); loadErr != nil {
		log.Warn("some slaves could not be loaded", "error", loadErr)
	}
	if err := applyInitialMode(ctx, m, cfg.Machine); err != nil {
		return err
	}

	// Drive value sampling
	if writer != nil && len(cfg.InfluxDB.SampleKeys) > 0 {
		sampler := telemetry.NewSampler(telemetry.SamplerOptions{
			Source:   m,
			Writer:   writer,
			Keys:     cfg.InfluxDB.SampleKeys,
			Interval: cfg.InfluxDB.SampleInterval,
			Logger:   log.Component("sampler"),
		})
		sampler.Start(ctx)
		defer sampler.Stop()
	}

	// Admin API
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Machine: m,
			MQTT:    mqttClient,
			DB:      db,
			Version: version,
		}
		if prom != nil {
			deps.Metrics = prom.Handler()
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"mode", m.Mode().String(),
		"slaves", len(m.Slaves()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadNetdataMap reads the register map file, or returns the built-in map
// when path is empty.
func loadNetdataMap(path string) (*netdata.Map, error) {
	if path == "" {
		return netdata.Default(), nil
	}
	m, err := netdata.LoadMap(path)
	if err != nil {
		return nil, fmt.Errorf("loading netdata map: %w", err)
	}
	return m, nil
}

// staticSlaves converts the configured slave list.
func staticSlaves(list []config.SlaveConfig) ([]slave.Slave, error) {
	out := make([]slave.Slave, 0, len(list))
	for i, sc := range list {
		s, err := slave.New(sc.Address, sc.Driver, sc.ControlMode, sc.Config)
		if err != nil {
			return nil, fmt.Errorf("slaves[%d]: %w", i, err)
		}
		if sc.Serialnumber != "" {
			s = s.WithSerialnumber(sc.Serialnumber)
		}
		out = append(out, s)
	}
	return out, nil
}

// applyInitialMode enters the configured operating mode.
func applyInitialMode(ctx context.Context, m *machine.Machine, cfg config.MachineConfig) error {
	mode, err := machine.ParseOperatingMode(cfg.OperatingMode)
	if err != nil {
		return fmt.Errorf("machine.operating_mode: %w", err)
	}
	if mode == machine.ModeStandalone {
		return nil
	}
	if err := m.SetOperatingMode(ctx, mode, cfg.Master); err != nil {
		return fmt.Errorf("entering %s mode: %w", mode, err)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
