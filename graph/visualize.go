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

package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
)

// Layout and output formats understood by Graphviz.
const (
	// RankDirLR sets a left-to-right layout in Graphviz.
	RankDirLR = "LR"
	// RankDirTB sets a top-to-bottom layout in Graphviz.
	RankDirTB = "TB"

	// ImageFormatPNG is the PNG output format for Graphviz.
	ImageFormatPNG = "png"
	// ImageFormatSVG is the SVG output format for Graphviz.
	ImageFormatSVG = "svg"
)

const (
	shapeBox     = "box"
	shapeDiamond = "diamond"
	shapeOval    = "oval"

	colorModelFill       = "#e3f2fd"
	colorModelBorder     = "#2196f3"
	colorBuiltinFill     = "#fff3e0"
	colorBuiltinBorder   = "#ff9800"
	colorSubgraphFill    = "#e8f5e9"
	colorSubgraphBorder  = "#4caf50"
	colorJoinFill        = "#f3e5f5"
	colorJoinBorder      = "#9c27b0"
	colorDefaultFill     = "#eeeeee"
	colorDefaultBorder   = "#757575"
	colorStartFill       = "#e1f5e1"
	colorEndFill         = "#ffe1e1"
	colorEndBorder       = "#f44336"
	colorConditionalEdge = "#999999"
)

// VizOptions configures DOT export and rendering.
type VizOptions struct {
	// RankDir sets DOT graph direction: "LR" or "TB".
	RankDir string
	// IncludeStartEnd toggles visualization of virtual Start/End nodes.
	IncludeStartEnd bool
	// ExpandSubgraphs draws subgraph nodes as clusters of their inner nodes.
	ExpandSubgraphs bool
	// GraphLabel optionally labels the whole graph.
	GraphLabel string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets DOT graph direction. Valid values: "LR", "TB".
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithIncludeStartEnd toggles rendering of Start/End virtual nodes.
func WithIncludeStartEnd(include bool) VizOption {
	return func(o *VizOptions) { o.IncludeStartEnd = include }
}

// WithExpandSubgraphs toggles rendering subgraph internals as clusters.
func WithExpandSubgraphs(expand bool) VizOption {
	return func(o *VizOptions) { o.ExpandSubgraphs = expand }
}

// WithGraphLabel sets an optional label for the graph.
func WithGraphLabel(label string) VizOption {
	return func(o *VizOptions) { o.GraphLabel = label }
}

func defaultVizOptions() *VizOptions {
	return &VizOptions{
		RankDir:         RankDirTB,
		IncludeStartEnd: true,
		ExpandSubgraphs: true,
	}
}

// DOT returns a Graphviz DOT representation of the graph: nodes styled by
// NodeType, solid static edges and dashed conditional edges labelled by
// branch. Expanded subgraphs become clusters whose node IDs are prefixed
// with the subgraph node ID.
func (g *Graph) DOT(opts ...VizOption) string {
	o := defaultVizOptions()
	for _, fn := range opts {
		fn(o)
	}
	var b strings.Builder
	b.WriteString("digraph G {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", o.RankDir)
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\"];\n")
	if o.GraphLabel != "" {
		fmt.Fprintf(&b, "  label=\"%s\";\n  labelloc=t;\n", escapeLabel(o.GraphLabel))
	}
	g.writeBody(&b, o, "", "  ")
	b.WriteString("}\n")
	return b.String()
}

// writeBody writes the nodes and edges of g. prefix scopes the IDs of a
// nested graph.
func (g *Graph) writeBody(b *strings.Builder, o *VizOptions, prefix, indent string) {
	id := func(nodeID string) string { return escapeLabel(prefix + nodeID) }

	if o.IncludeStartEnd {
		fmt.Fprintf(b, "%s\"%s\" [label=\"start\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			indent, id(Start), shapeOval, colorStartFill, colorSubgraphBorder)
		fmt.Fprintf(b, "%s\"%s\" [label=\"end\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			indent, id(End), shapeOval, colorEndFill, colorEndBorder)
	}

	for _, nodeID := range g.NodeIDs() {
		n, _ := g.Node(nodeID)
		label := n.Name
		if label == "" {
			label = n.ID
		}
		if n.Subgraph != nil && o.ExpandSubgraphs {
			fmt.Fprintf(b, "%ssubgraph \"cluster_%s\" {\n", indent, id(nodeID))
			fmt.Fprintf(b, "%s  label=\"%s\";\n", indent, escapeLabel(label))
			fmt.Fprintf(b, "%s  style=rounded;\n%s  color=\"%s\";\n", indent, indent, colorSubgraphBorder)
			n.Subgraph.writeBody(b, o, prefix+nodeID+"/", indent+"  ")
			fmt.Fprintf(b, "%s}\n", indent)
			continue
		}
		shape, fill, color := styleForNodeType(n.Type)
		fmt.Fprintf(b, "%s\"%s\" [label=\"%s\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			indent, id(n.ID), escapeLabel(label), shape, fill, color)
	}

	// endpoint maps an edge end onto the drawn node, entering or leaving a
	// cluster through its virtual start/end.
	endpoint := func(nodeID string, entering bool) string {
		if n, ok := g.Node(nodeID); ok && n.Subgraph != nil && o.ExpandSubgraphs && o.IncludeStartEnd {
			if entering {
				return escapeLabel(prefix + nodeID + "/" + Start)
			}
			return escapeLabel(prefix + nodeID + "/" + End)
		}
		return id(nodeID)
	}
	hidden := func(from, to string) bool {
		return !o.IncludeStartEnd && (from == Start || to == End)
	}

	froms := make([]string, 0)
	g.mu.RLock()
	for from := range g.edges {
		froms = append(froms, from)
	}
	condFroms := make([]string, 0, len(g.conditionalEdges))
	for from := range g.conditionalEdges {
		condFroms = append(condFroms, from)
	}
	g.mu.RUnlock()
	sort.Strings(froms)
	sort.Strings(condFroms)

	for _, from := range froms {
		for _, e := range g.Edges(from) {
			if hidden(e.From, e.To) {
				continue
			}
			fmt.Fprintf(b, "%s\"%s\" -> \"%s\";\n", indent, endpoint(e.From, false), endpoint(e.To, true))
		}
	}
	for _, from := range condFroms {
		ce, _ := g.ConditionalEdge(from)
		keys := make([]string, 0, len(ce.PathMap))
		for k := range ce.PathMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			to := ce.PathMap[k]
			if hidden(from, to) {
				continue
			}
			fmt.Fprintf(b, "%s\"%s\" -> \"%s\" [style=dashed, color=\"%s\", label=\"%s\"];\n",
				indent, endpoint(from, false), endpoint(to, true), colorConditionalEdge, escapeLabel(k))
		}
	}
}

// WriteDOT writes the DOT representation to the provided writer.
func (g *Graph) WriteDOT(w io.Writer, opts ...VizOption) error {
	_, err := io.WriteString(w, g.DOT(opts...))
	return err
}

// RenderImage renders the graph to an image by invoking Graphviz's `dot` binary.
func (g *Graph) RenderImage(ctx context.Context, format, outputPath string, opts ...VizOption) error {
	if format == "" {
		format = ImageFormatPNG
	}
	dotPath, err := exec.LookPath("dot")
	if err != nil {
		return fmt.Errorf("graphviz 'dot' binary not found in PATH: %w", err)
	}
	cmd := exec.CommandContext(ctx, dotPath, "-T"+format, "-o", outputPath)
	cmd.Stdin = bytes.NewBufferString(g.DOT(opts...))
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("dot render failed: %w, output: %s", runErr, string(out))
	}
	return nil
}

func styleForNodeType(nt NodeType) (shape, fill, color string) {
	switch nt {
	case NodeTypeModel:
		return shapeBox, colorModelFill, colorModelBorder
	case NodeTypeBuiltin:
		return shapeBox, colorBuiltinFill, colorBuiltinBorder
	case NodeTypeSubgraph:
		return shapeBox, colorSubgraphFill, colorSubgraphBorder
	case NodeTypeJoin:
		return shapeDiamond, colorJoinFill, colorJoinBorder
	default:
		return shapeBox, colorDefaultFill, colorDefaultBorder
	}
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
