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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dcs-sim/simengine/event"
	"github.com/dcs-sim/simengine/runner"
	"github.com/dcs-sim/simengine/state"
)

type playOptions struct {
	pc, npc  string
	playerID string
	source   string

	store     string
	storePath string
	redisURL  string

	timeout  time.Duration
	stops    []string
	provider string
	model    string
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	o := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play <game>",
		Short: "Play a game interactively",
		Long: `Play a game by name or path. Lines read from stdin are the player's
actions; /quit ends the run and /feedback <text> records feedback.

Examples:
  simengine play explore
  simengine play games/explore.yaml --pc human-normative --store sqlite`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, root, args[0])
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.pc, "pc", "", "Player character hid (random when empty)")
	flags.StringVar(&o.npc, "npc", "", "Non-player character hid (random when empty)")
	flags.StringVar(&o.playerID, "player-id", "", "Player ID recorded with the run")
	flags.StringVar(&o.source, "source", "cli", "Run source recorded with the run")
	flags.StringVar(&o.store, "store", storeFile, "Run store: file, redis, sqlite or none")
	flags.StringVar(&o.storePath, "store-path", "runs", "Directory for the file store, database file for sqlite")
	flags.StringVar(&o.redisURL, "redis-url", "redis://localhost:6379/0", "Redis URL for the redis store")
	flags.DurationVar(&o.timeout, "turn-timeout", runner.DefaultConfig().Timeout, "Maximum duration of one turn (0 disables)")
	flags.StringArrayVar(&o.stops, "stop", nil, "Extra stopping condition attr=cond, for example turns=>20 (repeatable)")
	flags.StringVar(&o.provider, "subgraph-provider", runner.DefaultSubgraphProvider, "Provider of the validator and updater model")
	flags.StringVar(&o.model, "subgraph-model", runner.DefaultSubgraphModel, "Validator and updater model")
	return cmd
}

func (o *playOptions) run(cmd *cobra.Command, root *rootOptions, ref string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	game, _, err := root.loadGame(ref)
	if err != nil {
		return err
	}
	chars, ok, err := root.loadCharacters()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no characters file; pass --characters")
	}
	stops, err := parseStops(o.stops)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(o.store, o.storePath, o.redisURL)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []runner.Option{
		runner.WithConfig(runner.DefaultConfig().WithTimeout(o.timeout).WithStoppingConditions(stops)),
		runner.WithCharacters(o.pc, o.npc),
		runner.WithPlayerID(o.playerID),
		runner.WithSource(o.source),
		runner.WithSubgraphModel(o.provider, o.model),
	}
	if store != nil {
		opts = append(opts, runner.WithStore(store))
	}
	r, err := runner.NewFromGame(game, chars, newModel, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Playing %s as %s (run %s). Type /quit to stop.\n", game.Name, r.Record().PC, r.Name())

	in := newLineReader(cmd.InOrStdin(), out, isTerminal(cmd.InOrStdin()))
	if err := r.Play(ctx, in.next, func(ev *event.Event) { printEvent(out, ev) }); err != nil {
		return err
	}
	_, reason := r.Exited()
	fmt.Fprintf(out, "Run %s ended: %s\n", r.Name(), reason)
	if r.Saved() {
		fmt.Fprintf(out, "Saved run %s to the %s store.\n", r.ID(), o.store)
	}
	return nil
}

// parseStops turns attr=cond pairs into stopping conditions.
func parseStops(pairs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, p := range pairs {
		attr, cond, ok := strings.Cut(p, "=")
		attr, cond = strings.TrimSpace(attr), strings.TrimSpace(cond)
		if !ok || attr == "" || cond == "" {
			return nil, fmt.Errorf("invalid stopping condition %q, want attr=cond", p)
		}
		out[attr] = append(out[attr], cond)
	}
	return out, nil
}

func printEvent(w io.Writer, ev *event.Event) {
	msg := ev.Message()
	if msg == nil {
		return
	}
	switch msg.Type {
	case state.TypeAI, state.TypeAssistant:
		fmt.Fprintln(w, msg.Content)
	default:
		fmt.Fprintf(w, "[%s] %s\n", msg.Type, msg.Content)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// lineReader feeds stdin lines to Play. Reading happens on its own
// goroutine so that a cancelled context is noticed while waiting.
type lineReader struct {
	lines  chan string
	errs   chan error
	out    io.Writer
	prompt bool
}

func newLineReader(r io.Reader, out io.Writer, prompt bool) *lineReader {
	lr := &lineReader{lines: make(chan string), errs: make(chan error, 1), out: out, prompt: prompt}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lr.lines <- sc.Text()
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		lr.errs <- err
	}()
	return lr
}

func (lr *lineReader) next(ctx context.Context) (string, error) {
	if lr.prompt {
		fmt.Fprint(lr.out, "> ")
	}
	select {
	case line := <-lr.lines:
		return line, nil
	case err := <-lr.errs:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
