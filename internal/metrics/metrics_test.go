package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOperation(t *testing.T) {
	m := New()

	m.RecordOperation("create", "ok", 2*time.Millisecond)
	m.RecordOperation("create", "ok", time.Millisecond)
	m.RecordOperation("update", "VERSION_CONFLICT", time.Millisecond)

	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create", "ok")); got != 2 {
		t.Errorf("create ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("update", "VERSION_CONFLICT")); got != 1 {
		t.Errorf("update conflict = %v, want 1", got)
	}
}

func TestRecordSearchAndRepairs(t *testing.T) {
	m := New()

	m.RecordSearch(3)
	m.RecordSearch(0)
	m.RecordIndexRepair("removed")

	if got := testutil.ToFloat64(m.SearchQueriesTotal); got != 2 {
		t.Errorf("queries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SearchResultsTotal); got != 3 {
		t.Errorf("results = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.IndexRepairsTotal.WithLabelValues("removed")); got != 1 {
		t.Errorf("repairs = %v, want 1", got)
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Registering twice on the default registry would panic
	a := New()
	b := New()
	a.RecordSearch(1)
	if got := testutil.ToFloat64(b.SearchQueriesTotal); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetItemCounts(map[string]int{"agent": 4})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `grimoire_items{category="agent"} 4`) {
		t.Errorf("metrics output missing item gauge:\n%s", body)
	}
}
