package bootstrap

import (
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// logReporter writes tally snapshots to the debug log.
type logReporter struct {
	logger *zap.SugaredLogger
}

func newLogReporter(logger *zap.SugaredLogger) tally.StatsReporter {
	return logReporter{logger: logger.Named("metrics")}
}

func (r logReporter) Capabilities() tally.Capabilities {
	return r
}

func (logReporter) Reporting() bool { return true }

func (logReporter) Tagging() bool { return true }

func (logReporter) Flush() {}

func (r logReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.logger.Debugw("counter", "name", name, "tags", tags, "value", value)
}

func (r logReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.logger.Debugw("gauge", "name", name, "tags", tags, "value", value)
}

func (r logReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.logger.Debugw("timer", "name", name, "tags", tags, "value", interval)
}

func (r logReporter) ReportHistogramValueSamples(
	name string,
	tags map[string]string,
	_ tally.Buckets,
	lower, upper float64,
	samples int64,
) {
	r.logger.Debugw("histogram", "name", name, "tags", tags, "lower", lower, "upper", upper, "samples", samples)
}

func (r logReporter) ReportHistogramDurationSamples(
	name string,
	tags map[string]string,
	_ tally.Buckets,
	lower, upper time.Duration,
	samples int64,
) {
	r.logger.Debugw("histogram", "name", name, "tags", tags, "lower", lower, "upper", upper, "samples", samples)
}
