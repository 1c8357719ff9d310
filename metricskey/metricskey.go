package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfOffloadOperation is perf metric
	PerfOffloadOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_offload",
		Help:         "perf_offload provides the sample metrics of offloaded crypto operations",
		RequiredTags: []string{"category", "action"},
	}

	// PerfSlotWait is perf metric
	PerfSlotWait = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_offload_slot_wait",
		Help:         "perf_offload_slot_wait provides the sample metrics of task slot acquisition",
		RequiredTags: []string{"category"},
	}
)

// Stats
var (
	// StatsOffloadFallback is counter metric
	StatsOffloadFallback = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_offload_fallback",
		Help:         "stats_offload_fallback provides the count of operations redirected to software",
		RequiredTags: []string{"category", "reason"},
	}

	// StatsOffloadSubmitted is counter metric
	StatsOffloadSubmitted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_offload_submitted",
		Help:         "stats_offload_submitted provides the count of requests accepted by the device",
		RequiredTags: []string{"category", "mode"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfOffloadOperation,
	&PerfSlotWait,
	&StatsOffloadFallback,
	&StatsOffloadSubmitted,
}
