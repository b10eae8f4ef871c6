package main

import (
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/spectral"
	"github.com/mklimuk/spectral/acquisition"
	"github.com/mklimuk/spectral/cmd/spectral/console"
	"github.com/mklimuk/spectral/hud"
	"github.com/mklimuk/spectral/snsctx"
	"github.com/mklimuk/spectral/telemetry"
	"github.com/mklimuk/spectral/web"
)

const (
	StatusLinkOn  = "Wi-Fi ON "
	StatusLinkOff = "Wi-Fi OFF"
)

var runCmd = cli.Command{
	Name:  "run",
	Usage: "acquire frames continuously and publish them",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "broker",
			Usage:   "MQTT broker url, e.g. tcp://thingsboard:1883; empty logs telemetry",
			EnvVars: []string{"SPECTRAL_BROKER"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "device access token",
			EnvVars: []string{"SPECTRAL_TOKEN"},
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "web page address; empty disables it",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "pause between acquisition cycles",
		},
		&cli.BoolFlag{
			Name:  "show-display",
			Usage: "print the status display when it changes",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := snsctx.Logger(ctx)

		hw, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() {
			if hw.sim != nil && len(hw.sim.Violations()) > 0 {
				log.Warn("simulated device saw protocol violations", "violations", hw.sim.Violations())
			}
			if err := hw.Close(); err != nil {
				log.Warn("could not close bus", "error", err)
			}
		}()

		hudOpts := []hud.Opt{hud.WithLogger(log)}
		if c.Bool("show-display") {
			hudOpts = append(hudOpts, hud.WithOnChange(func(lines []string) {
				console.Print(strings.Join(lines, "\n"))
			}))
		}
		display := hud.New(hudOpts...)
		display.Show(linkStatus(), spectral.SlotWiFi)

		led, err := openLED(ctx, cfg.LED, hw)
		if err != nil {
			return console.Exit(1, "could not open led: %s", console.Red(err))
		}

		sensor := openSensor(ctx, hw, cfg.Sensor)
		info, err := sensor.Init(ctx)
		if err != nil {
			display.Show(acquisition.StatusSensorError, spectral.SlotSensorStatus)
			return console.Exit(1, "sensor initialization error: %s", console.Red(err))
		}
		console.PInfof(console.PictoSpectrum, "sensor %#02x hw %#02x fw %#02x ready", info.DeviceType, info.HWVersion, info.FWVersion)

		var sink acquisition.Sink
		if cfg.MQTT.Broker == "" {
			sink = telemetry.NewLogSink(log)
		} else {
			mq := telemetry.NewMQTTSink(cfg.MQTT.Broker, display, led,
				telemetry.WithClientID(cfg.MQTT.ClientID),
				telemetry.WithAccessToken(cfg.MQTT.Token),
				telemetry.WithQoS(cfg.MQTT.QoS),
				telemetry.WithPublishTimeout(ms(cfg.MQTT.PublishTimeoutMs)),
				telemetry.WithLogger(log),
			)
			// the client keeps retrying in the background
			if err := mq.Connect(ctx); err != nil {
				log.Warn("broker not reachable yet", "error", err)
			}
			defer mq.Close()
			sink = mq
		}

		loop := acquisition.New(sensor, sink, display,
			acquisition.WithInterval(ms(cfg.Acquisition.IntervalMs)),
			acquisition.WithLogger(log),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return display.Run(gctx) })
		g.Go(func() error { return loop.Run(gctx) })
		if cfg.Web.Listen != "" {
			srv := web.New(led, web.WithStats(loop), web.WithDisplay(display), web.WithLogger(log))
			g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Web.Listen) })
		}
		err = g.Wait()
		stats := loop.Stats()
		log.Info("acquisition stopped", "cycles", stats.Cycles, "frames", stats.Frames,
			"frame_failures", stats.FrameFailures, "publish_failures", stats.PublishFailures)
		if err != nil && ctx.Err() == nil {
			return console.Exit(1, "daemon stopped: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "stopped")
		return nil
	},
}

// linkStatus reports whether the host has a non-loopback interface up.
func linkStatus() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return StatusLinkOff
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return StatusLinkOn
		}
	}
	return StatusLinkOff
}
