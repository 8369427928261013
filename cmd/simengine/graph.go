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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcs-sim/simengine/graph"
	"github.com/dcs-sim/simengine/simulation"
)

type graphOptions struct {
	output  string
	rankDir string
	expand  bool
}

func newGraphCmd(root *rootOptions) *cobra.Command {
	o := &graphOptions{}
	cmd := &cobra.Command{
		Use:   "graph <game>",
		Short: "Render a game's compiled graph",
		Long: `Render the compiled graph of a game in DOT format.

Examples:
  simengine graph explore
  simengine graph explore --expand --output explore.dot
  simengine graph explore --output explore.png   (requires Graphviz)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			game, _, err := root.loadGame(args[0])
			if err != nil {
				return err
			}
			g, err := simulation.Compile(&game.Graph)
			if err != nil {
				return err
			}
			defer g.Close()
			opts := []graph.VizOption{
				graph.WithRankDir(o.rankDir),
				graph.WithExpandSubgraphs(o.expand),
			}
			switch ext := strings.TrimPrefix(filepath.Ext(o.output), "."); ext {
			case "":
				return g.WriteDOT(cmd.OutOrStdout(), opts...)
			case "dot", "gv":
				f, err := os.Create(o.output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				if err := g.WriteDOT(f, opts...); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			default:
				if err := g.Graph().RenderImage(cmd.Context(), ext, o.output,
					append(opts, graph.WithGraphLabel(g.Name()))...); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Graph exported to %s\n", o.output)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.output, "output", "", "Output file; .dot/.gv for DOT, other extensions render with Graphviz (default: stdout)")
	cmd.Flags().StringVar(&o.rankDir, "rankdir", "TB", "Graph direction: TB or LR")
	cmd.Flags().BoolVar(&o.expand, "expand", false, "Draw the simulation subgraph's inner nodes")
	return cmd
}
