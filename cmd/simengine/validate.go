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

	"github.com/spf13/cobra"

	"github.com/dcs-sim/simengine/config"
	"github.com/dcs-sim/simengine/simulation"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <game>...",
		Short: "Check that games load and their graphs compile",
		Long: `Load each game, compile its graph against default state and check, when
a characters file is available, that both roles have a valid character.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chars, haveChars, err := root.loadCharacters()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, ref := range args {
				if err := validateGame(root, ref, chars, haveChars); err != nil {
					failed++
					fmt.Fprintf(out, "%s: FAIL\n  %v\n", ref, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", ref)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d games failed validation", failed, len(args))
			}
			return nil
		},
	}
}

func validateGame(root *rootOptions, ref string, chars config.Characters, haveChars bool) error {
	game, _, err := root.loadGame(ref)
	if err != nil {
		return err
	}
	g, err := simulation.Compile(&game.Graph)
	if err != nil {
		return err
	}
	g.Close()
	if !haveChars {
		return nil
	}
	pcs, npcs := game.ValidCharacters(chars)
	if len(pcs) == 0 {
		return fmt.Errorf("no valid pc choices")
	}
	if len(npcs) == 0 {
		return fmt.Errorf("no valid npc choices")
	}
	return nil
}
