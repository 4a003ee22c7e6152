package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("error = %v, want unknown flag", err)
	}
}

func TestRun_BadOutputFormat(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "output format") {
		t.Errorf("error = %v, want output format error", err)
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"--help"}); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
	if !strings.Contains(out.String(), "Usage: zpool-mqtt") {
		t.Errorf("help output missing usage line:\n%s", out.String())
	}
}

func TestRunVersion_Text(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "zpool-mqtt") {
		t.Errorf("version output missing program name:\n%s", got)
	}
	if !strings.Contains(got, "go_version:") {
		t.Errorf("version output missing go_version:\n%s", got)
	}
}

func TestRunVersion_JSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}

	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version JSON unmarshal error: %v\n%s", err, out.String())
	}
	if info["version"] == "" {
		t.Error("version field missing from JSON output")
	}
}

// writeTestEnv writes a fake zpool script and a config file pointing
// at it, returning the config path.
func writeTestEnv(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()

	zpoolPath := filepath.Join(dir, "zpool")
	if err := os.WriteFile(zpoolPath, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("write fake zpool: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("mqtt:\n  host: broker.local\nzpool:\n  command: %s\ndata_dir: %s\n", zpoolPath, dir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestRunOnce_Text(t *testing.T) {
	cfgPath := writeTestEnv(t, `printf 'tank\t1000\t400\t600\t-\t-\t5\t40\t1.00\tONLINE\t-\n'`)

	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-config", cfgPath, "once"}); err != nil {
		t.Fatalf("run(once) error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "tank") {
		t.Errorf("once output missing pool name:\n%s", got)
	}
	if !strings.Contains(got, "health:") || !strings.Contains(got, "ONLINE") {
		t.Errorf("once output missing health field:\n%s", got)
	}
}

func TestRunOnce_JSON(t *testing.T) {
	cfgPath := writeTestEnv(t, `printf 'tank\t1000\t400\t600\t-\t-\t5\t40\t1.00\tONLINE\t-\n'`)

	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-config", cfgPath, "-o", "json", "once"}); err != nil {
		t.Fatalf("run(once) error = %v", err)
	}

	var pools []map[string]string
	if err := json.Unmarshal(out.Bytes(), &pools); err != nil {
		t.Fatalf("once JSON unmarshal error: %v\n%s", err, out.String())
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1", len(pools))
	}
	if pools[0]["name"] != "tank" {
		t.Errorf("name = %q, want tank", pools[0]["name"])
	}
	if pools[0]["health_code"] != "0" {
		t.Errorf("health_code = %q, want 0", pools[0]["health_code"])
	}
}

func TestRunOnce_NoPools(t *testing.T) {
	cfgPath := writeTestEnv(t, "exit 0")

	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-config", cfgPath, "once"}); err != nil {
		t.Fatalf("run(once) error = %v", err)
	}
	if !strings.Contains(out.String(), "no pools") {
		t.Errorf("once output = %q, want no pools", out.String())
	}
}

func TestRunOnce_CommandFailure(t *testing.T) {
	cfgPath := writeTestEnv(t, "exit 1")

	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", cfgPath, "once"})
	if err == nil || !strings.Contains(err.Error(), "fetch pool status") {
		t.Errorf("error = %v, want fetch pool status failure", err)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", "/nonexistent/config.yaml", "once"})
	if err == nil {
		t.Error("run with missing config should error")
	}
}

func TestRunServe_InvalidConfigFatal(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	// Missing required mqtt.host.
	os.WriteFile(cfgPath, []byte("zpool:\n  interval_sec: 60\n"), 0600)

	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", cfgPath, "serve"})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("error = %v, want invalid config", err)
	}
}

func TestRunInit_WritesConfig(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"init", dir}); err != nil {
		t.Fatalf("run(init) error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not written: %v", err)
	}
	if !strings.Contains(string(data), "discovery_prefix: homeassistant") {
		t.Errorf("config.yaml missing expected defaults:\n%s", data)
	}
}

func TestRunInit_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("# mine\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"init", dir}); err != nil {
		t.Fatalf("run(init) error = %v", err)
	}

	data, _ := os.ReadFile(cfgPath)
	if string(data) != "# mine\n" {
		t.Errorf("init overwrote existing config: %q", data)
	}
}
