package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/moosethebrown/tello-net-bridge/adapters/mqtt"
	"github.com/moosethebrown/tello-net-bridge/adapters/udp"
	"github.com/moosethebrown/tello-net-bridge/config"
	"github.com/moosethebrown/tello-net-bridge/core"
	"github.com/moosethebrown/tello-net-bridge/drone"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

type App struct {
	cfg         *config.Config
	logger      *zerolog.Logger
	logOut      io.WriteCloser
	mqttAdapter *mqtt.Adapter
	udpAdapter  *udp.Adapter
	session     *drone.Session
	theCore     *core.Core
	group       *errgroup.Group
	cancel      context.CancelFunc
	failed      chan error
}

func NewApp(cfg *config.Config) *App {
	app := &App{
		cfg:    cfg,
		failed: make(chan error, 1),
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Invalid logLevel: %s, error: %s", cfg.LogLevel, err.Error())
		logLevel = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		app.logOut = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMb,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
		}
		out = app.logOut
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(logLevel)
	app.logger = &logger

	app.init()

	return app
}

func (app *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	app.group = g

	g.Go(func() error {
		app.theCore.Run()
		return nil
	})

	g.Go(func() error {
		err := app.mqttAdapter.Run()
		if err != nil {
			err = fmt.Errorf("mqtt adapter exited unexpectedly: %w", err)
			app.failed <- err
		}
		return err
	})

	if app.cfg.Drone.AutoConnect {
		g.Go(func() error {
			if err := app.session.Connect(ctx); err != nil {
				app.logger.Error().Err(err).Msg("auto connect failed")
			}
			return nil
		})
	}
}

// Failed delivers the error of a component that stopped on its own.
func (app *App) Failed() <-chan error {
	return app.failed
}

func (app *App) Stop() error {
	app.mqttAdapter.Stop()
	app.theCore.Stop()
	app.cancel()
	err := app.group.Wait()

	if derr := app.session.Disconnect(); derr != nil {
		app.logger.Warn().Err(derr).Msg("error while disconnecting drone")
	}
	if app.logOut != nil {
		app.logOut.Close()
	}
	return err
}

func (app *App) init() {
	keyTypes, err := app.cfg.Drone.KeyTypes()
	if err != nil {
		// rejected by config validation already
		app.logger.Warn().Err(err).Msg("ignoring telemetry key table")
	}

	udpLogger := app.logger.With().Str("component", "udp").Logger()
	app.udpAdapter = udp.NewAdapter(app.cfg.Drone.Address,
		app.cfg.Drone.CommandPort,
		app.cfg.Drone.LocalCommandPort,
		app.cfg.Drone.TelemetryPort,
		&udpLogger)

	droneLogger := app.logger.With().Str("component", "drone").Logger()
	app.session = drone.NewSession(app.udpAdapter, drone.Options{
		Policy:              app.cfg.Drone.Policy(),
		KeyTypes:            keyTypes,
		MissionPadOnConnect: app.cfg.Drone.MissionPadOnConnect,
		Logger:              &droneLogger,
	})

	coreLogger := app.logger.With().Str("component", "core").Logger()
	app.theCore = core.NewCore(app.session, nil,
		app.cfg.AnnounceInterval, app.cfg.TelemetryInterval,
		app.cfg.NetLossLand, &coreLogger)

	mqttLogger := app.logger.With().Str("component", "mqtt").Logger()
	app.mqttAdapter = mqtt.NewAdapter(app.cfg.Mqtt.Broker,
		time.Duration(app.cfg.Mqtt.ConnTimeout)*time.Millisecond,
		app.cfg.Mqtt.Username,
		app.cfg.Mqtt.Password,
		app.cfg.Mqtt.DroneId,
		app.cfg.Mqtt.AnnounceTopic,
		time.Duration(app.cfg.Mqtt.AnnounceTimeout)*time.Millisecond,
		time.Duration(app.cfg.Mqtt.DisconnectTimeout)*time.Millisecond,
		app.cfg.Mqtt.CertCheck,
		app.theCore,
		&mqttLogger)
	app.theCore.SetMqttHandler(app.mqttAdapter)
}
