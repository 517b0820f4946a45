/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Command bootwarmd captures a boot (or workload) trace and reduces it
// to one pack file per device, ready for a preload-on-boot replay tool
// to consume. See cmd/bootwarmd/command for its flags.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/containerd/log"
	"github.com/urfave/cli/v2"

	"github.com/bootwarm/bootwarm/cmd/bootwarmd/command"
	"github.com/bootwarm/bootwarm/config"
	"github.com/bootwarm/bootwarm/internal/logging"
	"github.com/bootwarm/bootwarm/pkg/fsquery"
	"github.com/bootwarm/bootwarm/pkg/packio"
	"github.com/bootwarm/bootwarm/version"
)

func main() {
	flags := command.NewFlags()
	app := &cli.App{
		Name:        "bootwarmd",
		Usage:       "trace a boot and build page-cache preload packs",
		Version:     version.Version,
		HideVersion: true,
		Flags:       flags.F,
		Action: func(c *cli.Context) error {
			os.Exit(run(c, flags.Args))
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.L.WithError(err).Error("bootwarmd failed to start")
		os.Exit(1)
	}
}

// run implements the Action body as a function returning the process
// exit code (§6), kept separate from main so cli.App's error-returning
// Action signature doesn't have to carry exit-code plumbing too.
func run(c *cli.Context, args *command.Args) int {
	if args.PrintVersion {
		fmt.Println("Version:    ", version.Version)
		fmt.Println("Revision:   ", version.Revision)
		fmt.Println("Go version: ", version.GoVersion)
		fmt.Println("Build time: ", version.BuildTimestamp)
		return 0
	}

	if !validSortKey(args.Sort) {
		fmt.Fprintf(os.Stderr, "invalid --sort value %q\n", args.Sort)
		return 1
	}
	if args.Dump {
		return runDump(args.PackFile, args.Sort)
	}
	if args.TimeoutSeconds <= 0 {
		fmt.Fprintln(os.Stderr, "--timeout must be a positive number of seconds")
		return 1
	}

	var cfg config.Config
	if err := config.LoadFile(args.ConfigPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		return 1
	}
	applyFlagOverrides(&cfg, args)
	if err := cfg.FillUpWithDefaults(); err != nil {
		fmt.Fprintf(os.Stderr, "applying config defaults: %v\n", err)
		return 1
	}

	if err := logging.SetUp(cfg.LogLevel, cfg.LogToStdout, cfg.LogDir, cfg.RotateArgs()); err != nil {
		fmt.Fprintf(os.Stderr, "setting up logging: %v\n", err)
		return 1
	}

	mountPath := c.Args().First()
	if mountPath == "" {
		mountPath = "/"
	}

	if !args.ForceTrace && existingPackIsFresh(&cfg, args.PackFile, mountPath) {
		log.L.Info("a pack for the traced device already exists, nothing to do (pass --force-trace to override)")
		return 0
	}

	if args.Daemon {
		if parent, code := daemonize(os.Args); parent {
			return code
		}
	}

	log.L.WithField("mount", mountPath).Info("starting trace capture")
	return runCapture(&cfg, mountPath, time.Duration(args.TimeoutSeconds)*time.Second, args.UseExistingTraceEvents, args.PackFile)
}

func applyFlagOverrides(cfg *config.Config, args *command.Args) {
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
	if args.LogToStdout {
		cfg.LogToStdout = true
	}
	if args.ForceSSDMode {
		cfg.ForceSSDMode = true
	}
	if args.PathPrefixFilter != "" {
		cfg.AllowPrefix = args.PathPrefixFilter
	}
	if args.PathPrefix != "" {
		if rule, err := prefixRuleFromStat(args.PathPrefix); err != nil {
			log.L.WithError(err).WithField("path-prefix", args.PathPrefix).Warn("could not stat --path-prefix, ignoring it")
		} else {
			cfg.PrefixRules = append(cfg.PrefixRules, rule)
		}
	}
}

// prefixRuleFromStat builds the device-scoped rewrite rule §6 calls
// for: the device id is derived from stat(2) of prefix itself, and
// paths under it are rewritten relative to it.
func prefixRuleFromStat(prefix string) (config.PrefixRule, error) {
	st, err := fsquery.NewLinux().Stat(prefix)
	if err != nil {
		return config.PrefixRule{}, err
	}
	return config.PrefixRule{DeviceID: st.DeviceID, From: prefix, To: ""}, nil
}

func existingPackIsFresh(cfg *config.Config, packFileOverride, mountPath string) bool {
	path := packFileOverride
	if path == "" {
		st, err := fsquery.NewLinux().Stat(mountPath)
		if err != nil {
			return false
		}
		path = filepath.Join(cfg.PackDir, packio.FileName(st.DeviceID))
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
