// Command streamview drives the presentation pipeline headlessly.
//
// The run command feeds a synthetic or image-sequence source through the
// software backend, draws the HUD over it and optionally writes every
// presented image as PNG. The monitor flag serves live statistics.
//
//	streamview run --frames 300 --out frames/ --monitor :8080
//	streamview config defaults > streamview.yaml
//	streamview probe
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "streamview:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "streamview",
		Usage:   "headless video presentation pipeline",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"STREAMVIEW_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "log as JSON",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
			probeCommand(),
		},
	}
}
