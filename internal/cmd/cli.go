// Package cmd holds the dwc2ctl command definitions, parsed by kong.
package cmd

// CLI is the root command structure.
type CLI struct {
	ConfigFile string        `help:"Explicit configuration file to load (json, yaml or toml)" type:"path"`
	Log        LogFlags      `embed:"" prefix:"log."`
	Sim        Sim           `cmd:"" help:"Run the driver end to end against a simulated core"`
	Fifo       Fifo          `cmd:"" help:"Compute the FIFO partition plan for a hardware profile"`
	Config     ConfigCommand `cmd:"" help:"Configuration file helpers"`
}

// LogFlags configures logging for all commands.
type LogFlags struct {
	Level string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"DWC2CTL_LOG_LEVEL"`
	File  string `help:"Write logs to this file instead of the console" env:"DWC2CTL_LOG_FILE"`
}
