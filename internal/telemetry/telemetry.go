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

// Package telemetry holds names and helpers shared by the tracing and
// metrics packages.
package telemetry

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Service and instrument identity.
const (
	ServiceName      = "simengine"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "dcs-sim"
	InstrumentName   = "github.com/dcs-sim/simengine"

	SpanNameExecuteGraph      = "execute_graph"
	SpanNamePrefixExecuteNode = "execute_node"
	SpanNameCallModel         = "call_model"
	SpanNameTurn              = "simulation_turn"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// Attribute keys.
var (
	KeyInvocationID = "simengine.invocation_id"
	KeyGraphName    = "simengine.graph"
	KeyNodeID       = "simengine.node_id"
	KeyNodeType     = "simengine.node_type"
	KeyNodePath     = "simengine.node_path"
	KeyNextNodes    = "simengine.next_nodes"
	KeyError        = "simengine.error"
	KeyModelName    = "gen_ai.request.model"
	KeyModelSystem  = "gen_ai.system"
	KeyPromptBytes  = "simengine.prompt_bytes"
	KeyOutputBytes  = "simengine.output_bytes"
)

// TraceNode sets the attributes of a node span.
func TraceNode(span trace.Span, invocationID, nodeID, nodeType string, path []string) {
	span.SetAttributes(
		attribute.String(KeyInvocationID, invocationID),
		attribute.String(KeyNodeID, nodeID),
		attribute.String(KeyNodeType, nodeType),
	)
	if len(path) > 0 {
		span.SetAttributes(attribute.String(KeyNodePath, strings.Join(path, "/")))
	}
}

// TraceModelCall sets the attributes of a model call span.
func TraceModelCall(span trace.Span, modelName, provider string, promptBytes, outputBytes int, err error) {
	span.SetAttributes(
		attribute.String(KeyModelSystem, provider),
		attribute.String(KeyModelName, modelName),
		attribute.Int(KeyPromptBytes, promptBytes),
		attribute.Int(KeyOutputBytes, outputBytes),
	)
	if err != nil {
		span.SetAttributes(attribute.String(KeyError, err.Error()))
	}
}

// NewGRPCConn connects to an OpenTelemetry collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
