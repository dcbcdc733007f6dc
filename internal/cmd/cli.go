// Package cmd defines the CLI commands.
package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// CLI is the root command structure parsed by kong.
type CLI struct {
	Log struct {
		Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"PIXELPUSHER_LOG_LEVEL"`
		File    string `help:"Log file path (default: stdout/stderr)" env:"PIXELPUSHER_LOG_FILE"`
		RawFile string `help:"File to dump raw USB transfers to" env:"PIXELPUSHER_LOG_RAW_FILE"`
	} `embed:"" prefix:"log."`
	Config string `help:"Path to a configuration file" env:"PIXELPUSHER_CONFIG"`

	Run       Run           `cmd:"" help:"Monitor USB hotplug events and drive attached controllers" default:"withargs"`
	List      List          `cmd:"" help:"List attached controllers and their interfaces"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
}

// parseUSBID parses a hex vendor or product id, with or without 0x prefix.
func parseUSBID(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("usb id %q: %w", s, err)
	}
	return uint16(v), nil
}
