package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/dispatch"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/logger"
	"github.com/ayusman/mudra/internal/notify"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
)

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log.Dev, cfg.Log.Level); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Log()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("mudra stopped", zap.Error(err))
		return err
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	var st *store.Store
	if cfg.History.Path != "" {
		var err error
		st, err = store.New(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer st.Close()
		log.Info("dispatch history enabled", zap.String("path", st.Path()))
	}

	sink, err := buildSink(cfg.Notify)
	if err != nil {
		return err
	}

	opts := []dispatch.Option{
		dispatch.WithTimeout(cfg.Notify.Timeout),
		dispatch.WithRetryAfter(cfg.Notify.RetryAfter),
		dispatch.WithLogger(log.Named("dispatch")),
	}
	if st != nil {
		opts = append(opts, dispatch.WithRecorder(store.NewRecorder(st.Dispatches(), cfg.Notify.Action)))
	}
	dispatcher := dispatch.New(sink, templateFor(cfg.Notify), cfg.Bindings, opts...)

	det, err := detector.NewMediaPipeDetector(detectorConfig(cfg.Detector))
	if err != nil {
		return fmt.Errorf("landmark detector: %w", err)
	}
	defer det.Close()

	camera := capture.NewCamera(capture.Options{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	})

	var renderer display.Renderer
	if cfg.Loop.Headless {
		renderer = display.NewHeadless()
	} else {
		renderer = display.NewWindow(display.WindowTitle)
	}

	var gate *capture.MotionGate
	if cfg.Loop.MotionThreshold > 0 {
		// Hold inference for about a second after the scene stops moving.
		gate = capture.NewMotionGate(cfg.Loop.MotionThreshold, cfg.Camera.FPS)
		defer gate.Close()
	}

	session := app.New(app.Config{
		Camera:          camera,
		Detector:        det,
		Dispatcher:      dispatcher,
		Renderer:        renderer,
		Motion:          gate,
		MaxReadFailures: cfg.Loop.MaxReadFailures,
		ReadRetryDelay:  cfg.Loop.ReadRetryDelay,
		EncodeFrames:    cfg.Server.Listen != "",
		Logger:          log.Named("app"),
	})

	if st != nil {
		session.SetEnabled(st.Settings().Bool(ctx, store.SettingDispatchEnabled, true))
	}

	if cfg.Server.Listen != "" {
		srv := server.New(serverConfig(cfg, st, session, log))
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
				log.Error("status server", zap.Error(err))
			}
		}()
	}

	log.Info("mudra started",
		zap.Int("camera", cfg.Camera.Device),
		zap.String("sink", cfg.Notify.Sink),
		zap.Ints("bound_counts", cfg.BoundCounts()),
		zap.Bool("headless", cfg.Loop.Headless),
	)

	err = session.Run(ctx)
	if errors.Is(err, app.ErrCaptureFailed) {
		return fmt.Errorf("camera %d: %w", cfg.Camera.Device, err)
	}
	return err
}

func detectorConfig(cfg config.Detector) detector.Config {
	return detector.Config{
		MaxHands:        cfg.MaxHands,
		MinConfidence:   cfg.MinDetectionConfidence,
		MinTrackingConf: cfg.MinTrackingConfidence,
		Script:          cfg.Script,
		Python:          cfg.Python,
	}
}

func serverConfig(cfg config.Config, st *store.Store, session server.Session, log *zap.Logger) server.Config {
	return server.Config{
		StaticDir: cfg.Server.StaticDir,
		Store:     st,
		Session:   session,
		Bindings:  cfg.Bindings,
		Logger:    log.Named("server"),
	}
}

// buildSink returns the notification sink selected by cfg.Sink.
func buildSink(cfg config.Notify) (notify.Sink, error) {
	switch cfg.Sink {
	case config.SinkHTTP:
		return notify.NewHTTPSink(cfg.URL, cfg.Timeout), nil
	case config.SinkPlugin:
		mgr := plugin.NewManager(cfg.Plugin.Dir)
		if err := mgr.Discover(); err != nil {
			return nil, fmt.Errorf("discover plugins: %w", err)
		}
		if _, err := mgr.Get(cfg.Plugin.Name); err != nil {
			return nil, fmt.Errorf("plugin %q in %s: %w", cfg.Plugin.Name, cfg.Plugin.Dir, err)
		}
		return notify.NewPluginSink(mgr, plugin.NewExecutor(cfg.Plugin.Timeout), cfg.Plugin.Name, cfg.Plugin.Config), nil
	default:
		return nil, fmt.Errorf("%w: unknown notify.sink %q", config.ErrInvalid, cfg.Sink)
	}
}

func templateFor(cfg config.Notify) notify.Template {
	return notify.Template{
		APIKey:   cfg.APIKey,
		DeviceID: cfg.DeviceID,
		Action:   cfg.Action,
	}
}
