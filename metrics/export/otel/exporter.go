package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on each collection. *authcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authcore.MetricID
	instrument metric.Int64ObservableCounter
}

type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	buckets      metric.Int64ObservableGauge
	count        metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
	bucketAttrs  [8]metric.ObserveOption
}

// NewExporter registers the instruments on meter and starts observing
// source.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(internaldefs.CounterDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+3)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	latency := internaldefs.LatencyDef
	var err error
	e.buckets, err = meter.Int64ObservableGauge(latency.Name+"_bucket",
		metric.WithDescription(latency.Help+" Cumulative bucket counts."))
	if err != nil {
		return nil, fmt.Errorf("create bucket gauge: %w", err)
	}
	e.count, err = meter.Int64ObservableGauge(latency.Name+"_count",
		metric.WithDescription(latency.Help+" Sample count."))
	if err != nil {
		return nil, fmt.Errorf("create count gauge: %w", err)
	}
	e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.buckets, e.count, e.auditDropped)

	for i, le := range internaldefs.HistogramBounds {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	if raw, ok := snapshot.Histograms[internaldefs.LatencyDef.ID]; ok {
		cumulative := internaldefs.CumulativeBuckets(raw)
		for i, v := range cumulative {
			o.ObserveInt64(e.buckets, int64(v), e.bucketAttrs[i])
		}
		o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
