//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/telemetry/metric"
	"github.com/dcs-sim/simengine/telemetry/trace"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	logLevel     string
	logFile      string
	otelEndpoint string
	gamesDir     string
	characters   string

	cleanups []func() error
}

// newRootCmd builds the command tree. Call teardown on the returned options
// once the command has run.
func newRootCmd() (*cobra.Command, *rootOptions) {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "simengine",
		Short:         "Run turn-based character simulations",
		Long:          `simengine plays simulation games described in YAML, validates them and renders their graphs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.logLevel, "log-level", log.LevelInfo, "Log level: debug, info, warn, error")
	flags.StringVar(&o.logFile, "log-file", "", "Write JSON logs to this file instead of stderr")
	flags.StringVar(&o.otelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint for traces and metrics (host:port)")
	flags.StringVar(&o.gamesDir, "games-dir", "games", "Directory searched for game files")
	flags.StringVar(&o.characters, "characters", "", "Characters file (default <games-dir>/characters.yaml)")

	cmd.AddCommand(
		newPlayCmd(o),
		newValidateCmd(o),
		newGraphCmd(o),
		newGamesCmd(o),
	)
	return cmd, o
}

func (o *rootOptions) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log.SetLevel(o.logLevel)
	if o.logFile != "" {
		logger, closeFn, err := log.NewFileLogger(o.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		log.Default = logger
		o.cleanups = append(o.cleanups, closeFn)
	}
	if o.otelEndpoint != "" {
		cleanTrace, err := trace.Start(ctx, trace.WithEndpoint(o.otelEndpoint))
		if err != nil {
			return fmt.Errorf("start tracing: %w", err)
		}
		o.cleanups = append(o.cleanups, cleanTrace)
		cleanMetric, err := metric.Start(ctx, metric.WithEndpoint(o.otelEndpoint))
		if err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
		o.cleanups = append(o.cleanups, cleanMetric)
	}
	return nil
}

func (o *rootOptions) teardown() error {
	var errs []error
	for i := len(o.cleanups) - 1; i >= 0; i-- {
		errs = append(errs, o.cleanups[i]())
	}
	o.cleanups = nil
	return errors.Join(errs...)
}

// loadGame resolves a game by path or name.
func (o *rootOptions) loadGame(ref string) (*config.GameConfig, string, error) {
	g, path, err := config.FindGame(o.gamesDir, ref)
	if err != nil {
		return nil, "", err
	}
	return g, path, nil
}

// loadCharacters reads the characters file. When no file was named and the
// default one is missing, ok is false.
func (o *rootOptions) loadCharacters() (chars config.Characters, ok bool, err error) {
	path := o.characters
	if path == "" {
		for _, name := range []string{"characters.yaml", "characters.yml"} {
			candidate := filepath.Join(o.gamesDir, name)
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return nil, false, nil
		}
	}
	chars, err = config.LoadCharacters(path)
	if err != nil {
		return nil, false, err
	}
	return chars, true, nil
}
