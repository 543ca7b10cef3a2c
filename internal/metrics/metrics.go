package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dbnlive"

// Live instruments the client façade, connection handle and health monitor.
type Live struct {
	Records           *prometheus.CounterVec
	DecodeErrors      prometheus.Counter
	GatewayErrors     *prometheus.CounterVec
	Commands          *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	QueueDropped      prometheus.Counter
	ListenerPanics    prometheus.Counter
	Reconnects        prometheus.Counter
	ReconnectFailures prometheus.Counter
	DroppedTriggers   prometheus.Counter
	ConnectionState   prometheus.Gauge
	HealthState       prometheus.Gauge
}

// NewLive creates the client metrics.
func NewLive(reg prometheus.Registerer) *Live {
	f := promauto.With(reg)
	return &Live{
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "records_total",
			Help:      "Records decoded, by record type",
		}, []string{"rtype"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "decode_errors_total",
			Help:      "Record buffers that failed to decode",
		}),
		GatewayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "gateway_errors_total",
			Help:      "Transport errors, by kind",
		}, []string{"kind"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "commands_total",
			Help:      "Gateway operations, by operation and result",
		}, []string{"op", "result"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "queue_depth",
			Help:      "Records waiting in the consumer queue",
		}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "queue_dropped_total",
			Help:      "Records dropped by a full bounded queue",
		}),
		ListenerPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "listener_panics_total",
			Help:      "Listener invocations that panicked",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "reconnects_total",
			Help:      "Successful reconnection sequences",
		}),
		ReconnectFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "reconnect_failures_total",
			Help:      "Reconnection sequences that exhausted their retries",
		}),
		DroppedTriggers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "dropped_triggers_total",
			Help:      "Reconnect triggers ignored while a sequence was running",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connection_state",
			Help:      "Current connection state as its enum value",
		}),
		HealthState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "state",
			Help:      "Current health state as its enum value",
		}),
	}
}

// Router instruments record dispatch.
type Router struct {
	Routed        *prometheus.CounterVec
	Dropped       *prometheus.CounterVec
	Unknown       prometheus.Counter
	GatewayErrors prometheus.Counter
}

// NewRouter creates the router metrics.
func NewRouter(reg prometheus.Registerer) *Router {
	f := promauto.With(reg)
	return &Router{
		Routed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "routed_total",
			Help:      "Messages routed, by stream",
		}, []string{"stream"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "dropped_total",
			Help:      "Messages dropped because a stream was closed, by stream",
		}, []string{"stream"}),
		Unknown: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "unknown_total",
			Help:      "Records with no route",
		}),
		GatewayErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "gateway_error_records_total",
			Help:      "Error records received from the gateway",
		}),
	}
}

// Writer instruments the database writers.
type Writer struct {
	Inserts   *prometheus.CounterVec
	Conflicts *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	BatchSize *prometheus.HistogramVec
	FlushTime *prometheus.HistogramVec
}

// NewWriter creates the writer metrics.
func NewWriter(reg prometheus.Registerer) *Writer {
	f := promauto.With(reg)
	return &Writer{
		Inserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "inserts_total",
			Help:      "Rows inserted, by table",
		}, []string{"table"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "conflicts_total",
			Help:      "Rows skipped by ON CONFLICT, by table",
		}, []string{"table"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "errors_total",
			Help:      "Failed batch inserts, by table",
		}, []string{"table"}),
		BatchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "batch_size",
			Help:      "Rows per flushed batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"table"}),
		FlushTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flush_duration_seconds",
			Help:      "Time to flush one batch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
	}
}

// Cache instruments the quote cache.
type Cache struct {
	Writes prometheus.Counter
	Errors prometheus.Counter
}

// NewCache creates the cache metrics.
func NewCache(reg prometheus.Registerer) *Cache {
	f := promauto.With(reg)
	return &Cache{
		Writes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Quote hashes written",
		}),
		Errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Failed pipeline executions",
		}),
	}
}
