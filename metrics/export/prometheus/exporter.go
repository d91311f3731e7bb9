package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/metrics/export/internaldefs"
)

// Source is what the exporter reads. *portalguard.Engine satisfies it.
type Source interface {
	MetricsSnapshot() portalguard.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a Source on demand.
type Exporter struct {
	source Source
}

// New returns an Exporter reading from source.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. It is empty when metrics are disabled.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	lastName := ""
	for _, def := range internaldefs.CounterDefs {
		if def.Name != lastName {
			writeHeader(&b, def.Name, def.Help, "counter")
			lastName = def.Name
		}
		writeSample(&b, def.Name, def.Label, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(&b, def, internaldefs.CumulativeBuckets(raw))
	}

	writeHeader(&b, "uimp_audit_dropped_total", "Audit events dropped on a full dispatcher buffer.", "counter")
	writeSample(&b, "uimp_audit_dropped_total", [2]string{}, dropped)

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

func writeSample(b *strings.Builder, name string, label [2]string, value uint64) {
	b.WriteString(name)
	if label[0] != "" {
		b.WriteByte('{')
		b.WriteString(label[0])
		b.WriteString(`="`)
		b.WriteString(label[1])
		b.WriteString(`"}`)
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, def internaldefs.HistogramDef, cumulative [internaldefs.BucketCount]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, def.Name+"_bucket", [2]string{"le", le}, cumulative[i])
	}
	writeSample(b, def.Name+"_count", [2]string{}, cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only.
	writeSample(b, def.Name+"_sum", [2]string{}, 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
