// Package config loads and watches the gateway configuration file (config.yaml).
//
// Top-level types:
//   - Config: workstation_name, log_level, poll_interval, queue_timeout and
//     the sections below
//   - SerialConfig: port (empty = USB discovery), baud_rate, read_timeout,
//     reopen_backoff, extra usb_ids
//   - HTTPConfig: port and AuthConfig (mode none|apikey, header, key_env,
//     allowed_hosts) for the control-plane endpoint
//   - BackendConfig: endpoint, username, password_env, timeout,
//     login_retry, buffer_size
//   - MQTTConfig: optional broker mirror; empty broker disables it
//   - AlertsConfig: webhooks fired on health faults, cooldown
//
// Load(path) reads the YAML file, applies defaults (115200 baud, 5s poll,
// port 8080, 5s login retry), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after every
// event so atomic-save editors (rename then create) keep working.
package config
