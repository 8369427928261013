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

package simulation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"

	"github.com/dcs-sim/simengine/log"
	smetric "github.com/dcs-sim/simengine/telemetry/metric"
)

// Metric names.
const (
	MetricTurns              = "simengine.turns"
	MetricValidatorRejection = "simengine.validator.rejections"
	MetricModelCalls         = "simengine.model.calls"
)

type instruments struct {
	turns      metric.Int64Counter
	rejections metric.Int64Counter
	modelCalls metric.Int64Counter
}

// newInstruments creates the counters on the current telemetry meter.
// Counters that cannot be created fall back to no-ops.
func newInstruments() *instruments {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := smetric.Meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warnf("create counter %s: %v", name, err)
			return noopm.Int64Counter{}
		}
		return c
	}
	return &instruments{
		turns:      counter(MetricTurns, "Turns streamed, by outcome."),
		rejections: counter(MetricValidatorRejection, "User actions rejected by the validator."),
		modelCalls: counter(MetricModelCalls, "Model invocations, by node and outcome."),
	}
}

func (m *instruments) turn(ctx context.Context, graphName, outcome string) {
	m.turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.String("outcome", outcome),
	))
}

func (m *instruments) rejection(ctx context.Context, graphName string, exhausted bool) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.Bool("budget_exhausted", exhausted),
	))
}

func (m *instruments) modelCall(ctx context.Context, node string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("outcome", outcome),
	))
}
