package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roadops/operator-console/internal/api"
	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/internal/console"
	"github.com/roadops/operator-console/internal/dispatcher"
	"github.com/roadops/operator-console/internal/geo"
	"github.com/roadops/operator-console/internal/influx"
	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/monitor"
	"github.com/roadops/operator-console/internal/recorder"
	"github.com/roadops/operator-console/internal/traffic"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console session, API and recorder",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfgErr := config.Load(configDir)

	// Logging
	logManager := logging.NewSlogManager()
	logsDir := config.GetString("logsDir")
	logLevel := config.GetString("logLevel")

	var logFile io.Writer
	if err := os.MkdirAll(logsDir, 0755); err == nil {
		f, err := os.OpenFile(logging.LogFilePath(logsDir, Name, start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer f.Close()
			logFile = f
		}
	}

	var gelfWriter io.Writer
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address, Name)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		} else {
			gelfWriter = w
		}
	}

	var current atomic.Pointer[console.Session]
	logManager.Setup(logFile, logLevel, gelfWriter, func() []slog.Attr {
		if s := current.Load(); s != nil {
			return s.LogContext()
		}
		return nil
	})
	defer logManager.Close()
	logger := logManager.Logger()

	zlOut := io.Writer(os.Stdout)
	if logFile != nil {
		zlOut = logFile
	}
	zl := logging.NewZerolog(zlOut, logLevel, Name)

	if cfgErr != nil {
		logger.Warn("Config file not loaded, using defaults", "error", cfgErr)
	}

	// Session
	trafficCfg := config.GetTrafficConfig()
	session, err := console.New(console.Options{
		Scenario:  config.GetString("scenario"),
		Telemetry: config.GetTelemetryConfig(),
		Traffic: traffic.Params{
			LaneTolerance: trafficCfg.LaneTolerance,
			SafeDistance:  trafficCfg.SafeDistance,
			TickScale:     trafficCfg.TickScale,
			RoadLength:    trafficCfg.RoadLength,
			Margin:        trafficCfg.Margin,
			AgentCount:    trafficCfg.AgentCount,
			Seed:          trafficCfg.Seed,
		},
		TrafficVisible: trafficCfg.Visible,
		TickRate:       config.GetInt("clock.tickRate"),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create console session: %w", err)
	}
	current.Store(session)

	// Storage
	storageCfg := config.GetStorageConfig()
	stores, err := createStorageBackend(storageCfg, storageDeps{
		LogManager:   logManager,
		Zerolog:      zl,
		SessionStart: start,
	})
	if err != nil {
		return err
	}
	defer stores.Close()

	backend := stores.Backend
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	info := session.Info()
	if err := backend.StartSession(&info); err != nil {
		logger.Error("Failed to start recording session", "error", err)
	}

	rec, err := recorder.New(recorder.Dependencies{
		Hero:          session.HeroState(),
		LogManager:    logManager,
		FlushInterval: storageCfg.FlushInterval,
		TrafficEvery:  storageCfg.TrafficEvery,
	}, backend)
	if err != nil {
		return err
	}
	session.AttachRecorder(rec)
	rec.Start()

	// Commands
	d, err := dispatcher.New(logging.NewDispatcherLogger(zl.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	session.RegisterCommands(d)
	if stores.Influx != nil {
		registerMetricCommand(d, stores.Influx)
	}

	mon := monitor.NewService(monitor.Dependencies{
		Provider:   session,
		LogManager: logManager,
		StatusDir:  logsDir,
	})
	if err := mon.Start(); err != nil {
		logger.Error("Failed to start status monitor", "error", err)
	}

	config.Watch(func(e fsnotify.Event) {
		logger.Info("Config file changed", "file", e.Name)
		logManager.SetLevel(config.GetString("logLevel"))
		session.ApplyTrafficConfig(config.GetTrafficConfig())
	})

	var georef *geo.Georeferencer
	if gc := config.GetGeoConfig(); gc.AnchorLon != 0 || gc.AnchorLat != 0 {
		georef, err = geo.NewGeoreferencer(gc.AnchorLon, gc.AnchorLat)
		if err != nil {
			logger.Warn("Georeferencing disabled", "error", err)
		}
	}

	session.Start()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if apiCfg := config.GetAPIConfig(); apiCfg.Enabled {
		srv := api.NewServer(api.Dependencies{
			Session:       session,
			Dispatcher:    d,
			Georeferencer: georef,
			Logger:        logger,
			Version:       Version,
		})
		g.Go(func() error {
			return srv.Start(apiCfg.Listen)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	logger.Info("Shutting down")

	session.Close()
	mon.Stop()
	d.Close()

	var errs []error
	if err := rec.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}
	if err := backend.EndSession(); err != nil {
		errs = append(errs, fmt.Errorf("ending session: %w", err))
	}
	logExports(logger, backend)
	if err := backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	for _, err := range errs {
		logger.Error("Shutdown error", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// registerMetricCommand lets operator tooling push ad-hoc metrics to InfluxDB.
func registerMetricCommand(d *dispatcher.Dispatcher, m *influx.Manager) {
	d.Register(":METRIC:", func(e dispatcher.Event) (any, error) {
		bucket, point, err := influx.ParseMetric(e.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to parse metric: %w", err)
		}
		if err := m.WritePoint(context.Background(), bucket, point); err != nil {
			return nil, err
		}
		return nil, nil
	}, dispatcher.Buffered(1000), dispatcher.Logged())
}
