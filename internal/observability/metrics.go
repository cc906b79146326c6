package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/protokit/internal/protocol"
)

const (
	DirectionEncode = "encode"
	DirectionDecode = "decode"
)

var (
	registerOnce sync.Once

	codecMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protokit",
			Subsystem: "codec",
			Name:      "messages_total",
			Help:      "Messages encoded or decoded.",
		},
		[]string{"endpoint", "direction", "success"},
	)
	codecBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protokit",
			Subsystem: "codec",
			Name:      "message_bytes",
			Help:      "Encoded message size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		},
		[]string{"endpoint", "direction"},
	)
	codecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protokit",
			Subsystem: "codec",
			Name:      "duration_seconds",
			Help:      "Time spent encoding or decoding one message.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
		[]string{"endpoint", "direction"},
	)
	codecErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protokit",
			Subsystem: "codec",
			Name:      "errors_total",
			Help:      "Encode and decode failures by reason.",
		},
		[]string{"endpoint", "direction", "reason"},
	)
	schemaRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protokit",
			Subsystem: "schema",
			Name:      "registrations_total",
			Help:      "Schema registrations by kind.",
		},
		[]string{"kind", "success"},
	)
	schemaFinalize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "protokit",
			Subsystem: "schema",
			Name:      "finalize_duration_seconds",
			Help:      "Schema finalize duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(codecMessages, codecBytes, codecDuration, codecErrors, schemaRegistrations, schemaFinalize)
	})
}

// RecordCodec records one encode or decode. size is the wire size of the
// message; it is not observed on failure.
func RecordCodec(endpoint, direction string, size int, duration time.Duration, err error) {
	RegisterMetrics()
	codecMessages.WithLabelValues(endpoint, direction, strconv.FormatBool(err == nil)).Inc()
	codecDuration.WithLabelValues(endpoint, direction).Observe(duration.Seconds())
	if err != nil {
		codecErrors.WithLabelValues(endpoint, direction, ErrorReason(err)).Inc()
		return
	}
	codecBytes.WithLabelValues(endpoint, direction).Observe(float64(size))
}

func RecordSchemaRegistration(kind string, err error) {
	RegisterMetrics()
	schemaRegistrations.WithLabelValues(kind, strconv.FormatBool(err == nil)).Inc()
}

func RecordSchemaFinalize(duration time.Duration) {
	RegisterMetrics()
	schemaFinalize.Observe(duration.Seconds())
}

// ErrorReason is the metric label of err: the typed reason when there is one.
func ErrorReason(err error) string {
	var (
		de *protocol.DecodeError
		ee *protocol.EncodeError
		se *protocol.SchemaError
	)
	switch {
	case errors.As(err, &de):
		return de.Reason.String()
	case errors.As(err, &ee):
		return ee.Reason.String()
	case errors.As(err, &se):
		return se.Reason.String()
	default:
		return "other"
	}
}
