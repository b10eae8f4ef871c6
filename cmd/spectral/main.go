package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/spectral/cmd/spectral/console"
	"github.com/mklimuk/spectral/config"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	err := newApp().Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "spectral"
	app.EnableBashCompletion = true
	if version == "" {
		version = config.Version
	}
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "AS7265x spectral sensor acquisition daemon"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "dump adapter reports",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "configuration file",
			EnvVars: []string{"SPECTRAL_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: mcp2221, generic, nanopi or sim",
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "host bus name for the generic adapter",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") || ctx.Bool("trace") {
			charm.SetLevel(chlog.DebugLevel)
			console.Trace = true
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	// exit codes are handled by run
	app.ExitErrHandler = func(_ *cli.Context, err error) {
		if err != nil {
			console.Error(err.Error())
		}
	}
	app.Commands = cli.Commands{
		&runCmd,
		&readCmd,
		&infoCmd,
		&configureCmd,
		&configCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	return app
}
