package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is invalid.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
machine:
  serialnumber: "SN-TEST"
  host: "127.0.0.1"
  port: 6969

drive:
  driver: modbus
  host: "127.0.0.1"
  port: 502

database:
  path: ""

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_SlaveModeWithoutMaster verifies the initial mode is validated.
func TestRun_SlaveModeWithoutMaster(t *testing.T) {
	writeConfig(t, `
machine:
  host: "127.0.0.1"
  port: 6969
  operating_mode: slave

drive:
  driver: modbus
  host: "127.0.0.1"
  port: 502

database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail in slave mode without master")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestLoadNetdataMap(t *testing.T) {
	m, err := loadNetdataMap("")
	if err != nil || m == nil {
		t.Fatalf("loadNetdataMap(\"\") = %v, %v", m, err)
	}
	if _, err := loadNetdataMap("/nonexistent/netdata.yaml"); err == nil {
		t.Error("loadNetdataMap() with missing file succeeded")
	}
}

func TestStaticSlaves(t *testing.T) {
	slaves, err := staticSlaves([]config.SlaveConfig{
		{Address: "10.0.0.2", Serialnumber: "SN-2"},
		{Address: "10.0.0.3:7000", Driver: "remote", ControlMode: "position"},
	})
	if err != nil {
		t.Fatalf("staticSlaves() error = %v", err)
	}
	if len(slaves) != 2 {
		t.Fatalf("slaves = %d, want 2", len(slaves))
	}
	if slaves[0].Serialnumber != "SN-2" {
		t.Errorf("serialnumber = %q, want SN-2", slaves[0].Serialnumber)
	}
	if slaves[1].Address.Port != 7000 {
		t.Errorf("port = %d, want 7000", slaves[1].Address.Port)
	}

	if _, err := staticSlaves([]config.SlaveConfig{{Address: "10.0.0.4", Driver: "carrier-pigeon"}}); err == nil {
		t.Error("staticSlaves() with unknown driver succeeded")
	}
}
