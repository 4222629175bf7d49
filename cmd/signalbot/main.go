package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "signalbot"
	app.Usage = "track trading signals through their risk lifecycle"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "./configs",
			Usage: "directory holding config.yml",
		},
	}

	app.Commands = []cli.Command{
		serveCMD,
		monitorCMD,
		statsCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the price feed, bot scheduler and operator API",
		Action:      serveAction,
		Description: `Run the long-lived service until SIGINT or SIGTERM`,
	}
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "refresh prices and run a single monitor pass",
		Action:      monitorAction,
		Description: `Run one trade monitor pass and exit`,
	}
	statsCMD = cli.Command{
		Name:   "stats",
		Usage:  "print closed-trade analytics as JSON",
		Action: statsAction,
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "by-symbol",
				Usage: "group statistics by symbol",
			},
		},
	}
)
