package main

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/urfave/cli/v2"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/backend/native"
	"github.com/gogpu/streamview/cache"
	"github.com/gogpu/streamview/config"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "initialize the GPU backend and describe the adapter",
		Action: func(c *cli.Context) error {
			log, err := newLogger(c.App.ErrWriter, c.String("log-level"), c.Bool("log-json"))
			if err != nil {
				return err
			}
			shaders := cache.New(cache.DefaultMaxBytes)
			path := config.DefaultShaderCachePath()
			if path != "" {
				if err := shaders.LoadFile(path); err != nil {
					log.Warn("shader cache ignored", "path", path, "err", err)
				}
			}

			b := native.New()
			if err := b.Init(backend.Config{Logger: log, ShaderCache: shaders}); err != nil {
				return err
			}
			defer b.Close()
			describe(c, b)

			if path != "" && shaders.Dirty() {
				if err := shaders.SaveFile(path); err != nil {
					log.Warn("shader cache not saved", "path", path, "err", err)
				}
			}
			return nil
		},
	}
}

func describe(c *cli.Context, p gpucontext.DeviceProvider) {
	info := p.AdapterInfo()
	fmt.Fprintf(c.App.Writer, "adapter: %s\ntype:    %v\nformat:  %v\n", info.Name, info.Type, p.SurfaceFormat())
}
