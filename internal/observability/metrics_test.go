package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordCodec("GetOrder", DirectionEncode, 42, 3*time.Microsecond, nil)
	RecordCodec("GetOrder", DirectionDecode, 0, time.Microsecond, &protocol.DecodeError{Reason: protocol.Truncated})
	RecordSchemaRegistration("message", nil)
	RecordSchemaFinalize(2 * time.Millisecond)

	if got := testutil.ToFloat64(codecMessages.WithLabelValues("GetOrder", DirectionEncode, "true")); got < 1 {
		t.Fatalf("expected encode counter, got %v", got)
	}
	if got := testutil.ToFloat64(codecErrors.WithLabelValues("GetOrder", DirectionDecode, "truncated")); got < 1 {
		t.Fatalf("expected truncated decode error, got %v", got)
	}
	if got := testutil.ToFloat64(schemaRegistrations.WithLabelValues("message", "true")); got < 1 {
		t.Fatalf("expected schema registration, got %v", got)
	}
}

func TestErrorReasonLabels(t *testing.T) {
	testlog.Start(t)

	cases := map[string]error{
		"truncated":              &protocol.DecodeError{Reason: protocol.Truncated},
		"unrepresentable_type":   &protocol.EncodeError{Reason: protocol.UnrepresentableType},
		"sealed_schema_mutation": &protocol.SchemaError{Reason: protocol.SealedSchemaMutation},
		"other":                  errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorReason(err); got != want {
			t.Fatalf("ErrorReason(%v) = %q, want %q", err, got, want)
		}
	}
}
