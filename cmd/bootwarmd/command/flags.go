/*
 * SPDX-License-Identifier: Apache-2.0
 */

package command

import (
	"github.com/urfave/cli/v2"
)

const (
	defaultConfigPath = "/etc/bootwarmd/config.toml"
	defaultTimeout    = 120
	defaultSort       = "path"
)

// Args holds every flag bootwarmd accepts, filled in directly by
// urfave/cli via Destination so Action can read them as plain fields.
type Args struct {
	ConfigPath             string
	MountPath              string
	Daemon                 bool
	ForceTrace             bool
	TimeoutSeconds         int
	Dump                   bool
	Sort                   string
	PathPrefix             string
	PathPrefixFilter       string
	PackFile               string
	UseExistingTraceEvents bool
	ForceSSDMode           bool
	LogLevel               string
	LogToStdout            bool
	PrintVersion           bool
}

// Flags bundles the parsed Args with the cli.Flag slice urfave/cli
// needs wired onto an App.
type Flags struct {
	Args *Args
	F    []cli.Flag
}

// NewFlags returns a Flags with every Destination pointed at a fresh
// Args so repeated calls (as in tests) never share state.
func NewFlags() *Flags {
	args := &Args{}
	return &Flags{Args: args, F: buildFlags(args)}
}

func buildFlags(args *Args) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "version",
			Usage:       "print version and build information",
			Destination: &args.PrintVersion,
		},
		&cli.StringFlag{
			Name:        "config",
			Value:       defaultConfigPath,
			Usage:       "path to the bootwarmd TOML configuration",
			Destination: &args.ConfigPath,
		},
		&cli.BoolFlag{
			Name:        "daemon",
			Usage:       "fork into the background before event dispatch begins; the parent exits as soon as the child has been started",
			Destination: &args.Daemon,
		},
		&cli.BoolFlag{
			Name:        "force-trace",
			Usage:       "collect a fresh trace even if a pack for the traced device already exists",
			Destination: &args.ForceTrace,
		},
		&cli.IntFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "seconds to wait for SIGINT/SIGTERM before ending the trace automatically",
			Destination: &args.TimeoutSeconds,
		},
		&cli.BoolFlag{
			Name:        "dump",
			Usage:       "print the contents of an existing pack file instead of capturing a trace",
			Destination: &args.Dump,
		},
		&cli.StringFlag{
			Name:        "sort",
			Value:       defaultSort,
			Usage:       "dump ordering: one of \"open\", \"path\", \"disk\", \"size\"",
			Destination: &args.Sort,
		},
		&cli.StringFlag{
			Name:        "path-prefix",
			Usage:       "rewrite paths under `PREFIX` to be relative to the device stat(PREFIX) resolves to, e.g. a chroot or overlay mount",
			Destination: &args.PathPrefix,
		},
		&cli.StringFlag{
			Name:        "path-prefix-filter",
			Usage:       "only capture paths beneath `PREFIX`",
			Destination: &args.PathPrefixFilter,
		},
		&cli.StringFlag{
			Name:        "pack-file",
			Usage:       "explicit pack `PATH`, either to dump or to restrict a capture run's write to a single device",
			Destination: &args.PackFile,
		},
		&cli.BoolFlag{
			Name:        "use-existing-trace-events",
			Usage:       "assume required trace events are already enabled and sized; never enable, disable, or resize them",
			Destination: &args.UseExistingTraceEvents,
		},
		&cli.BoolFlag{
			Name:        "force-ssd-mode",
			Usage:       "treat every device as non-rotational regardless of what the block layer reports",
			Destination: &args.ForceSSDMode,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "",
			Usage:       "log level, one of trace/debug/info/warn/error (overrides the config file)",
			Destination: &args.LogLevel,
		},
		&cli.BoolFlag{
			Name:        "log-to-stdout",
			Usage:       "write logs to stdout instead of the rotated log file",
			Destination: &args.LogToStdout,
		},
	}
}
