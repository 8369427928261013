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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dcs-sim/simengine/config"
)

func newGamesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "games [dir]",
		Short: "List the games found under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.gamesDir
			if len(args) == 1 {
				dir = args[0]
			}
			games, err := config.Discover(dir)
			if err != nil {
				return err
			}
			if len(games) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No games found under %s\n", dir)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH")
			for _, g := range games {
				fmt.Fprintf(tw, "%s\t%s\n", g.Name, g.Path)
			}
			return tw.Flush()
		},
	}
}
