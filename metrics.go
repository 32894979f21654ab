package muxwire

// Metric keys emitted through hashicorp/go-metrics. Sinks are configured
// by the application via metrics.NewGlobal; with no sink configured the
// calls are no-ops.
var (
	MetricConnEstablished = []string{"muxwire", "conn", "established", "count"}
	MetricConnClosed      = []string{"muxwire", "conn", "closed", "count"}
	MetricFramesIn        = []string{"muxwire", "frames", "in", "count"}
	MetricFramesOut       = []string{"muxwire", "frames", "out", "count"}
	MetricBytesIn         = []string{"muxwire", "bytes", "in", "count"}
	MetricBytesOut        = []string{"muxwire", "bytes", "out", "count"}
	MetricUnroutable      = []string{"muxwire", "unroutable", "count"}
)
