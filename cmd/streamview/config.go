package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gogpu/streamview/config"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect settings files",
		Subcommands: []*cli.Command{
			{
				Name:  "defaults",
				Usage: "print the default settings as YAML",
				Action: func(c *cli.Context) error {
					data, err := config.Marshal(config.Defaults())
					if err != nil {
						return err
					}
					_, err = c.App.Writer.Write(data)
					return err
				},
			},
			{
				Name:      "check",
				Usage:     "validate a settings file",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return errors.New("config check: missing FILE")
					}
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					if _, err := config.Parse(data); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(c.App.Writer, "%s: ok\n", path)
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "print the default shader cache path",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, config.DefaultShaderCachePath())
					return nil
				},
			},
		},
	}
}
