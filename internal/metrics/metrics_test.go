package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_NoPanic(t *testing.T) {
	// Verify Register can be called multiple times without panicking.
	// The sync.Once inside Register() ensures idempotency.
	Register()
	Register() // second call should be a no-op
}

func TestViewsProcessedTotal_Increments(t *testing.T) {
	ViewsProcessedTotal.Reset()
	ViewsProcessedTotal.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(ViewsProcessedTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected counter = 1, got %v", got)
	}
}
