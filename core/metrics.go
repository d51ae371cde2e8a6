package core

import "context"

// NopMetricsRecorder discards every measurement. The service builder falls
// back to it so delivery pipelines without a metrics backend still observe
// webhooks.<operation> counters and duration histograms without nil checks at
// each call site.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
