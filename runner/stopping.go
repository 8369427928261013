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

package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dcs-sim/simengine/log"
	"github.com/dcs-sim/simengine/state"
)

var numericAttrs = map[string]bool{
	AttrTurns:          true,
	AttrRuntimeSeconds: true,
}

var stringAttrs = map[string]bool{
	AttrRuntimeString: true,
	AttrExitReason:    true,
	AttrLifecycle:     true,
	AttrName:          true,
	AttrGame:          true,
	AttrSource:        true,
	AttrPlayerID:      true,
}

// validateStoppingConditions rejects unknown attributes and empty or
// malformed numeric comparisons.
func (r *Run) validateStoppingConditions() error {
	for _, attr := range sortedAttrs(r.cfg.StoppingConditions) {
		if !numericAttrs[attr] && !stringAttrs[attr] {
			return fmt.Errorf("stopping condition on unknown attribute %q", attr)
		}
		for _, cond := range r.cfg.StoppingConditions[attr] {
			if strings.TrimSpace(cond) == "" {
				return fmt.Errorf("stopping condition for %s is empty", attr)
			}
			if numericAttrs[attr] {
				if _, err := r.eval.Compare(0, cond); err != nil {
					return fmt.Errorf("stopping condition for %s: %w", attr, err)
				}
			}
		}
	}
	return nil
}

// stoppingReason reports the first satisfied stopping condition, if any.
// A terminal lifecycle set by the graph takes priority. r.mu must be held.
func (r *Run) stoppingReason() (string, bool) {
	switch r.st.Lifecycle {
	case state.LifecycleExit:
		if r.st.ExitReason != "" {
			return r.st.ExitReason, true
		}
		return "Game graph lifecycle is EXIT. No reason given.", true
	case state.LifecycleComplete:
		if r.st.ExitReason != "" {
			return r.st.ExitReason, true
		}
		return "game complete", true
	}

	now := r.now()
	for _, attr := range sortedAttrs(r.cfg.StoppingConditions) {
		for _, cond := range r.cfg.StoppingConditions[attr] {
			if numericAttrs[attr] {
				v := r.numericAttr(attr, now)
				ok, err := r.eval.Compare(float64(v), cond)
				if err != nil {
					log.Warnf("stopping condition %s %s could not be evaluated: %v", attr, cond, err)
					continue
				}
				if ok {
					return fmt.Sprintf("stopping condition met: %s %s", attr, cond), true
				}
				continue
			}
			if strings.Contains(r.stringAttr(attr, now), cond) {
				return fmt.Sprintf("stopping condition met: %s contains '%s'", attr, cond), true
			}
		}
	}
	return "", false
}

func (r *Run) numericAttr(attr string, now time.Time) int {
	switch attr {
	case AttrTurns:
		return len(r.st.Events)
	case AttrRuntimeSeconds:
		return runtimeSeconds(r.startedAt, r.end(now))
	}
	return 0
}

func (r *Run) stringAttr(attr string, now time.Time) string {
	switch attr {
	case AttrRuntimeString:
		return formatRuntime(runtimeSeconds(r.startedAt, r.end(now)))
	case AttrExitReason:
		return r.st.ExitReason
	case AttrLifecycle:
		return string(r.st.Lifecycle)
	case AttrName:
		return r.name
	case AttrGame:
		return r.game
	case AttrSource:
		return r.source
	case AttrPlayerID:
		return r.playerID
	}
	return ""
}

func (r *Run) end(now time.Time) time.Time {
	if r.exited {
		return r.endedAt
	}
	return now
}

func runtimeSeconds(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Second)
}

func formatRuntime(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

func sortedAttrs(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
