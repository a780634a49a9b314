package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/alerts"
	"github.com/hydrolab/stationlink/gateway/internal/api"
	"github.com/hydrolab/stationlink/gateway/internal/auth"
	"github.com/hydrolab/stationlink/gateway/internal/backend"
	"github.com/hydrolab/stationlink/gateway/internal/config"
	"github.com/hydrolab/stationlink/gateway/internal/exposition"
	"github.com/hydrolab/stationlink/gateway/internal/hardware"
	"github.com/hydrolab/stationlink/gateway/internal/mqtt"
	"github.com/hydrolab/stationlink/gateway/internal/status"
	"github.com/hydrolab/stationlink/gateway/internal/task"
	"github.com/hydrolab/stationlink/gateway/internal/ws"
	"github.com/hydrolab/stationlink/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// exportSource adapts the communicator counters to the exposition package.
type exportSource struct {
	*hardware.Communicator
}

func (s exportSource) Stats() exposition.Stats {
	st := s.Communicator.Stats()
	return exposition.Stats{
		FramesHandled: st.FramesHandled,
		FramesDropped: st.FramesDropped,
		Publishes:     st.Publishes,
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	backendURL := flag.String("backend", "", "backend base URL, overrides backend.endpoint")
	baudRate := flag.Int("baudrate", 0, "serial baud rate, overrides serial.baud_rate")
	interval := flag.Duration("interval", 0, "status poll interval, overrides poll_interval")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("stationlink-gateway starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	applyFlags := func(c *config.Config) {
		if *backendURL != "" {
			c.Backend.Endpoint = *backendURL
		}
		if *baudRate > 0 {
			c.Serial.BaudRate = *baudRate
		}
		if *interval > 0 {
			c.PollInterval = *interval
		}
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration after flag overrides", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Level())
	slog.Info("config loaded",
		"workstation", cfg.WorkstationName,
		"backend", cfg.Backend.Endpoint,
		"serial_port", cfg.Serial.Port,
		"baud_rate", cfg.Serial.BaudRate,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report := status.NewReport()
	health := status.NewHealthStatus(status.CodeUnavailable, "gateway starting")

	notifier := alerts.New(cfg.Alerts, cfg.WorkstationName)
	health.OnChange(notifier.OnHealthChange)
	health.OnChange(func(prev, next status.Health) {
		slog.Info("health changed", "from", prev.Code, "to", next.Code, "message", next.Message)
	})

	publisher := backend.New(cfg.Backend, cfg.WorkstationName)
	sinks := []types.Sink{publisher}

	// The communicator needs the sinks and the hub needs the communicator, so
	// the hub is attached through a forwarding sink.
	var hub *ws.Hub
	hubSink := sinkFunc(func(b types.Batch) {
		if hub != nil {
			hub.Ship(b)
		}
	})
	sinks = append(sinks, hubSink)

	var bridge *mqtt.Bridge
	var dispatcher *task.Dispatcher
	if cfg.MQTT.Enabled() {
		bridge = mqtt.New(cfg.MQTT, cfg.WorkstationName, dispatcherFunc(func(t task.ControlTask) (int, error) {
			return dispatcher.Dispatch(t)
		}))
		sinks = append(sinks, bridge)
		health.OnChange(bridge.PublishHealth)
	}

	comm := hardware.New(*cfg, report, health, sinks...)
	dispatcher = task.NewDispatcher(comm)
	hub = ws.New(comm, cfg.HTTP.StreamInterval)

	comm.Open()

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			slog.Debug("goroutine exited", "name", name)
		}()
	}

	run("communicator", func() { comm.Run(ctx) })
	run("publisher", func() { publisher.Run(ctx) })
	run("hub", func() { hub.Run(ctx) })

	if bridge != nil {
		if err := bridge.Connect(ctx); err != nil {
			slog.Error("mqtt bridge disabled", "err", err)
			bridge = nil
		} else {
			bridge.PublishHealth(status.Health{}, health.Get())
		}
	}

	// Hot-reload: log level and poll interval apply immediately; the watcher
	// logs any other field that changed.
	watcher := &config.Watcher{
		Path:     *configPath,
		Running:  cfg,
		Override: applyFlags,
		OnChange: func(updated *config.Config) {
			level.Set(updated.Level())
			comm.Writer().SetPollInterval(updated.PollInterval)
		},
	}
	run("config-watch", func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	})

	handler := auth.Middleware(cfg.HTTP.Auth,
		api.New(comm, dispatcher, exposition.Handler(exportSource{comm}), hub))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	run("http", func() {
		slog.Info("http: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("stationlink-gateway shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	wg.Wait()
	if bridge != nil {
		bridge.Disconnect()
	}
	notifier.Wait()

	st := comm.Stats()
	ps := publisher.Stats()
	slog.Info("stationlink-gateway stopped",
		"frames", st.FramesHandled,
		"frames_dropped", st.FramesDropped,
		"publishes", st.Publishes,
		"pushed", ps.Pushed,
		"push_failures", ps.Failed,
	)
}

type sinkFunc func(types.Batch)

func (f sinkFunc) Ship(b types.Batch) { f(b) }

type dispatcherFunc func(task.ControlTask) (int, error)

func (f dispatcherFunc) Dispatch(t task.ControlTask) (int, error) { return f(t) }
