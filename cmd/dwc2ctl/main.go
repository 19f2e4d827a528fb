// Command dwc2ctl exercises the DWC2 host controller driver: it can run the
// driver against a simulated core, compute FIFO partition plans for a
// hardware profile and scaffold configuration files.
package main

import (
	"os"
	"strings"

	"github.com/embhost/dwc2hcd/internal/cmd"
	"github.com/embhost/dwc2hcd/internal/configpaths"
	"github.com/embhost/dwc2hcd/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli cmd.CLI
	ctx := kong.Parse(&cli,
		kong.Name("dwc2ctl"),
		kong.Description("DWC2 USB host controller driver tool"),
		kong.UsageOnError(),
		// Load configuration from JSON/YAML/TOML in priority order; flags/env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	ctx.Bind(logger)

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--config-file" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "--config-file=") {
			return strings.TrimPrefix(a, "--config-file=")
		}
	}
	return ""
}
