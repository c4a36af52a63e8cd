/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package trace

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"k8s.io/klog/v2"
)

const exportTimeout = 5 * time.Second

// errorOnlyProcessor exports only spans that ended in error, optionally
// downsampled. Everything else is dropped at end time, which keeps the
// exporter quiet on the happy path.
type errorOnlyProcessor struct {
	exporter sdktrace.SpanExporter
	ratio    float64

	mu sync.Mutex
	rd *rand.Rand
}

func newErrorOnlyProcessor(exporter sdktrace.SpanExporter, ratio float64) *errorOnlyProcessor {
	return &errorOnlyProcessor{
		exporter: exporter,
		ratio:    ratio,
		rd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *errorOnlyProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *errorOnlyProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if span.Status().Code != codes.Error {
		return
	}
	if p.ratio < 1.0 {
		p.mu.Lock()
		keep := p.rd.Float64() < p.ratio
		p.mu.Unlock()
		if !keep {
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	if err := p.exporter.ExportSpans(ctx, []sdktrace.ReadOnlySpan{span}); err != nil {
		klog.V(2).ErrorS(err, "failed to export error span")
	}
}

func (p *errorOnlyProcessor) Shutdown(ctx context.Context) error {
	return p.exporter.Shutdown(ctx)
}

func (p *errorOnlyProcessor) ForceFlush(context.Context) error {
	return nil
}
