package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

// Source is what the exporter reads on each scrape. *authcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// healthSource is optional; sources implementing it also get a store gauge.
type healthSource interface {
	Health(ctx context.Context) authcore.HealthStatus
}

type Exporter struct {
	source Source
}

// NewExporter returns an exporter reading from source.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render(r.Context())))
	})
}

// Render returns the exposition text. It is empty when metrics are disabled
// and there is nothing else to report.
func (p *Exporter) Render(ctx context.Context) string {
	if p == nil || p.source == nil {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 || dropped > 0 {
		for _, def := range internaldefs.CounterDefs {
			writeSample(&b, def.Name, def.Help, "counter", snapshot.Counters[def.ID])
		}
		if raw, ok := snapshot.Histograms[internaldefs.LatencyDef.ID]; ok {
			writeHistogram(&b, internaldefs.LatencyDef, internaldefs.CumulativeBuckets(raw))
		}
		writeSample(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter", dropped)
	}

	if hs, ok := p.source.(healthSource); ok {
		var up uint64
		if hs.Health(ctx).StoreAvailable {
			up = 1
		}
		writeSample(&b, "authcore_refresh_store_up", "Whether the refresh store answered a ping.", "gauge", up)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, help, kind string, value uint64) {
	writeHeader(b, name, help, kind)
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, def internaldefs.Def, cumulative [8]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(def.Name)
		b.WriteString(`_bucket{le="`)
		b.WriteString(le)
		b.WriteString(`"} `)
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}
	b.WriteString(def.Name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	b.WriteByte('\n')
	// the engine keeps bucket counts only
	b.WriteString(def.Name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
