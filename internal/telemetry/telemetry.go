// Package telemetry owns the process meter provider. Instruments created from
// it are collected on demand and rendered in the Prometheus text format.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Provider wraps an SDK meter provider backed by a manual reader.
type Provider struct {
	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
	prefix string
}

// New creates a provider whose exported names start with prefix.
func New(prefix string) *Provider {
	reader := sdkmetric.NewManualReader()
	return &Provider{
		reader: reader,
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		prefix: prefix,
	}
}

func (p *Provider) MeterProvider() metric.MeterProvider { return p.mp }

// InstallGlobal makes p the otel global meter provider.
func (p *Provider) InstallGlobal() { otel.SetMeterProvider(p.mp) }

// Collect gathers the current value of every instrument.
func (p *Provider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := p.reader.Collect(ctx, &rm)
	return rm, err
}

func (p *Provider) Shutdown(ctx context.Context) error { return p.mp.Shutdown(ctx) }

// WritePrometheus collects and writes every instrument to w. extra labels
// are added to each sample.
func (p *Provider) WritePrometheus(ctx context.Context, w io.Writer, extra ...attribute.KeyValue) error {
	rm, err := p.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			p.writeMetric(w, m, extra)
		}
	}
	return nil
}

func (p *Provider) writeMetric(w io.Writer, m metricdata.Metrics, extra []attribute.KeyValue) {
	name := p.prefix + sanitize(m.Name)
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		name, kind := sumName(name, data.IsMonotonic)
		header(w, name, kind, m.Description)
		for _, dp := range data.DataPoints {
			fmt.Fprintf(w, "%s%s %d\n", name, labels(dp.Attributes, extra), dp.Value)
		}
	case metricdata.Sum[float64]:
		name, kind := sumName(name, data.IsMonotonic)
		header(w, name, kind, m.Description)
		for _, dp := range data.DataPoints {
			fmt.Fprintf(w, "%s%s %s\n", name, labels(dp.Attributes, extra), formatFloat(dp.Value))
		}
	case metricdata.Gauge[int64]:
		header(w, name, "gauge", m.Description)
		for _, dp := range data.DataPoints {
			fmt.Fprintf(w, "%s%s %d\n", name, labels(dp.Attributes, extra), dp.Value)
		}
	case metricdata.Gauge[float64]:
		header(w, name, "gauge", m.Description)
		for _, dp := range data.DataPoints {
			fmt.Fprintf(w, "%s%s %s\n", name, labels(dp.Attributes, extra), formatFloat(dp.Value))
		}
	case metricdata.Histogram[float64]:
		header(w, name, "histogram", m.Description)
		for _, dp := range data.DataPoints {
			var cum uint64
			for i, bound := range dp.Bounds {
				cum += dp.BucketCounts[i]
				le := attribute.String("le", formatFloat(bound))
				fmt.Fprintf(w, "%s_bucket%s %d\n", name, labels(dp.Attributes, append(extra[:len(extra):len(extra)], le)), cum)
			}
			inf := attribute.String("le", "+Inf")
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, labels(dp.Attributes, append(extra[:len(extra):len(extra)], inf)), dp.Count)
			fmt.Fprintf(w, "%s_sum%s %s\n", name, labels(dp.Attributes, extra), formatFloat(dp.Sum))
			fmt.Fprintf(w, "%s_count%s %d\n", name, labels(dp.Attributes, extra), dp.Count)
		}
	}
}

func sumName(name string, monotonic bool) (string, string) {
	if monotonic {
		return name + "_total", "counter"
	}
	return name, "gauge"
}

func header(w io.Writer, name, kind, help string) {
	if help != "" {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	}
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
}

func labels(set attribute.Set, extra []attribute.KeyValue) string {
	kvs := append(extra[:len(extra):len(extra)], set.ToSlice()...)
	if len(kvs) == 0 {
		return ""
	}
	sort.SliceStable(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	parts := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		parts = append(parts, sanitize(string(kv.Key))+"="+strconv.Quote(kv.Value.Emit()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, s)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
