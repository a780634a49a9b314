package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an editor produces for one save.
const settleDelay = 200 * time.Millisecond

// restartFields lists every setting that components capture at startup.
// log_level and poll_interval are absent: they are applied live.
var restartFields = []struct {
	name string
	get  func(*Config) any
}{
	{"workstation_name", func(c *Config) any { return c.WorkstationName }},
	{"queue_timeout", func(c *Config) any { return c.QueueTimeout }},
	{"serial.port", func(c *Config) any { return c.Serial.Port }},
	{"serial.baud_rate", func(c *Config) any { return c.Serial.BaudRate }},
	{"serial.read_timeout", func(c *Config) any { return c.Serial.ReadTimeout }},
	{"serial.reopen_backoff", func(c *Config) any { return c.Serial.ReopenBackoff }},
	{"serial.usb_ids", func(c *Config) any { return c.Serial.USBIDs }},
	{"http.port", func(c *Config) any { return c.HTTP.Port }},
	{"http.auth", func(c *Config) any { return c.HTTP.Auth }},
	{"http.stream_interval", func(c *Config) any { return c.HTTP.StreamInterval }},
	{"backend.endpoint", func(c *Config) any { return c.Backend.Endpoint }},
	{"backend.username", func(c *Config) any { return c.Backend.Username }},
	{"backend.password_env", func(c *Config) any { return c.Backend.PasswordEnv }},
	{"backend.timeout", func(c *Config) any { return c.Backend.Timeout }},
	{"backend.login_retry", func(c *Config) any { return c.Backend.LoginRetry }},
	{"backend.buffer_size", func(c *Config) any { return c.Backend.BufferSize }},
	{"mqtt", func(c *Config) any { return c.MQTT }},
	{"alerts", func(c *Config) any { return c.Alerts }},
}

// RestartRequired returns the settings that differ between running and
// updated and only take effect after a restart.
func RestartRequired(running, updated *Config) []string {
	var changed []string
	for _, f := range restartFields {
		if !reflect.DeepEqual(f.get(running), f.get(updated)) {
			changed = append(changed, f.name)
		}
	}
	return changed
}

// Watcher reloads the config file whenever it is saved. The directory is
// watched rather than the file, so editors that save by rename keep working.
type Watcher struct {
	// Path is the config file.
	Path string

	// Running is the config the process started with. Reloads are compared
	// against it; it is never modified.
	Running *Config

	// Override reapplies command-line overrides to every reloaded config.
	// It may be nil.
	Override func(*Config)

	// OnChange receives each valid reload.
	OnChange func(*Config)
}

// Run watches until ctx is cancelled. A reload that fails to parse or
// validate is logged and skipped; OnChange is not called for it.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", target)

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle.Reset(settleDelay)

		case <-settle.C:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	updated, err := w.load()
	if err != nil {
		slog.Error("config: reload failed, keeping current settings", "path", w.Path, "err", err)
		return
	}
	if w.Running != nil {
		if fields := RestartRequired(w.Running, updated); len(fields) > 0 {
			slog.Warn("config: changes need a restart to take effect", "fields", fields)
		}
	}
	slog.Info("config: reloaded", "path", w.Path,
		"log_level", updated.LogLevel, "poll_interval", updated.PollInterval)
	if w.OnChange != nil {
		w.OnChange(updated)
	}
}

func (w *Watcher) load() (*Config, error) {
	cfg, err := Load(w.Path)
	if err != nil {
		return nil, err
	}
	if w.Override != nil {
		w.Override(cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config: after overrides: %w", err)
		}
	}
	return cfg, nil
}
