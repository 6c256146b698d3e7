package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pxflut/internal/protocol"
)

const namespace = "pxflut"

type sessionHistogram struct {
	h prometheus.Histogram
}

func newSessionHistogram() sessionHistogram {
	return sessionHistogram{h: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "duration_seconds",
		Help:      "Lifetime of client sessions in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
	})}
}

func (s sessionHistogram) observe(d time.Duration) {
	if s.h != nil {
		s.h.Observe(d.Seconds())
	}
}

var (
	connectionsActiveDesc = prometheus.NewDesc(namespace+"_connections_active",
		"Currently open client connections.", nil, nil)
	connectionsTotalDesc = prometheus.NewDesc(namespace+"_connections_total",
		"Client connections accepted.", nil, nil)
	bytesDesc = prometheus.NewDesc(namespace+"_bytes_total",
		"Bytes transferred on the pixel protocol.", []string{"direction"}, nil)
	commandsDesc = prometheus.NewDesc(namespace+"_commands_total",
		"Commands executed.", []string{"kind"}, nil)
	parseErrorsDesc = prometheus.NewDesc(namespace+"_parse_errors_total",
		"Lines rejected by the parser.", []string{"kind"}, nil)
	pixelsDesc = prometheus.NewDesc(namespace+"_pixels_written_total",
		"Pixel writes applied to the canvas.", nil, nil)
	outOfBoundsDesc = prometheus.NewDesc(namespace+"_out_of_bounds_total",
		"Pixel commands outside the canvas.", nil, nil)
	canvasErrorsDesc = prometheus.NewDesc(namespace+"_canvas_errors_total",
		"Failed canvas calls.", nil, nil)
	tunnelReconnectsDesc = prometheus.NewDesc(namespace+"_tunnel_reconnects_total",
		"SSH reverse tunnel reconnections.", nil, nil)
	errorsDesc = prometheus.NewDesc(namespace+"_errors_total",
		"Server-side errors recorded.", nil, nil)
)

// exporter presents a Collector's atomic counters as Prometheus
// metrics at scrape time.
type exporter struct {
	c *Collector
}

func (e exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		connectionsActiveDesc, connectionsTotalDesc, bytesDesc, commandsDesc,
		parseErrorsDesc, pixelsDesc, outOfBoundsDesc, canvasErrorsDesc,
		tunnelReconnectsDesc, errorsDesc,
	} {
		ch <- d
	}
	if e.c.sessionSeconds.h != nil {
		e.c.sessionSeconds.h.Describe(ch)
	}
}

func (e exporter) Collect(ch chan<- prometheus.Metric) {
	c := e.c
	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(connectionsActiveDesc, c.connectionsActive.Load())
	counter(connectionsTotalDesc, c.connectionsTotal.Load())
	counter(bytesDesc, c.bytesIn.Load(), "in")
	counter(bytesDesc, c.bytesOut.Load(), "out")
	for k := 1; k < commandSlots; k++ {
		counter(commandsDesc, c.commands[k].Load(), protocol.Kind(k).String())
	}
	for k := 1; k < parseSlots; k++ {
		counter(parseErrorsDesc, c.parseErrors[k].Load(), label(protocol.ErrorKind(k).String()))
	}
	counter(pixelsDesc, c.pixelsWritten.Load())
	counter(outOfBoundsDesc, c.outOfBounds.Load())
	counter(canvasErrorsDesc, c.canvasErrors.Load())
	counter(tunnelReconnectsDesc, c.tunnelReconnects.Load())
	counter(errorsDesc, c.errorsTotal.Load())
	if c.sessionSeconds.h != nil {
		c.sessionSeconds.h.Collect(ch)
	}
}

func label(s string) string { return strings.ReplaceAll(s, " ", "_") }

// Register exposes c through reg.
func Register(reg prometheus.Registerer, c *Collector) error {
	if c == nil {
		return nil
	}
	return reg.Register(exporter{c: c})
}

// NewRegistry returns a registry holding c plus the Go runtime and
// process collectors, ready to serve on /metrics.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := Register(reg, c); err != nil {
		return nil, err
	}
	return reg, nil
}
