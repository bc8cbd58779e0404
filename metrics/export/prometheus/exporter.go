package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/MrEthical07/phoneAuth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() phoneAuth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders engine counters in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter reads from engine on every scrape.
func NewPrometheusExporter(engine *phoneAuth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the exposition on GET /metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = p.Encode(w)
	})
}

// Render returns the current exposition. It is empty while metrics are
// disabled and nothing was dropped.
func (p *PrometheusExporter) Render() string {
	var b strings.Builder
	_ = p.Encode(&b)
	return b.String()
}

// Encode writes one snapshot to w in a fixed metric order.
func (p *PrometheusExporter) Encode(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	for _, def := range internaldefs.CounterDefs {
		writeCounter(bw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(bw, def.Name, def.Help, cumulative)
	}
	writeCounter(bw, internaldefs.AuditDroppedName, "Audit events dropped because the dispatcher buffer was full.", dropped)
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}

func writeCounter(w *bufio.Writer, name, help string, value uint64) {
	writeHeader(w, name, help, "counter")
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func writeHistogram(w *bufio.Writer, name, help string, cumulative [8]uint64) {
	writeHeader(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	fmt.Fprintf(w, "%s_count %d\n", name, cumulative[len(cumulative)-1])
	// Snapshots carry no sum.
	fmt.Fprintf(w, "%s_sum 0\n", name)
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
