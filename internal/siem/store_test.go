package siem

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestStore(opts ...StoreOption) *Store {
	opts = append([]StoreOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewStore(opts...)
}

func TestStore_IngestAssignsSequentialIDs(t *testing.T) {
	store := newTestStore()

	for i := 1; i <= 3; i++ {
		receipt := store.Ingest(map[string]any{"n": i})
		if receipt.EventID != int64(i) {
			t.Errorf("ingest %d: expected id %d, got %d", i, i, receipt.EventID)
		}
		if receipt.TotalEvents != i {
			t.Errorf("ingest %d: expected total %d, got %d", i, i, receipt.TotalEvents)
		}
	}
}

func TestStore_ConcurrentIngestIsDense(t *testing.T) {
	store := newTestStore()
	const n = 200

	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = store.Ingest(map[string]any{"worker": i}).EventID
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("expected ids 1..%d without gaps, position %d has %d", n, i, id)
		}
	}

	events := store.Events()
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	for i, e := range events {
		if e.ID != int64(i+1) {
			t.Errorf("log out of order at %d: id %d", i, e.ID)
		}
	}
}

func TestStore_AlertClassification(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		alert bool
	}{
		{"high severity", map[string]any{"severity": "HIGH"}, true},
		{"denied access", map[string]any{"event": map[string]any{"result": false}}, true},
		{"both conditions", map[string]any{"severity": "HIGH", "event": map[string]any{"result": false}}, true},
		{"allowed access", map[string]any{"event": map[string]any{"result": true}}, false},
		{"lowercase severity", map[string]any{"severity": "high"}, false},
		{"numeric severity", map[string]any{"severity": 9}, false},
		{"top-level result", map[string]any{"result": false}, false},
		{"non-object event", map[string]any{"event": "denied"}, false},
		{"empty", map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			receipt := store.Ingest(tt.attrs)
			if receipt.Alert != tt.alert {
				t.Errorf("expected alert=%v, got %v", tt.alert, receipt.Alert)
			}
			want := int64(0)
			if tt.alert {
				want = 1
			}
			if got := store.Alerts(); got != want {
				t.Errorf("expected alert counter %d, got %d", want, got)
			}
		})
	}
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore()
	store.Ingest(map[string]any{"severity": "HIGH"})
	store.Ingest(map[string]any{"severity": "HIGH", "event": map[string]any{"result": false}})
	store.Ingest(map[string]any{"event": map[string]any{"result": false}})
	store.Ingest(map[string]any{"severity": "LOW"})

	got := store.Stats()
	want := Stats{TotalEvents: 4, HighRiskEvents: 2, DeniedAccesses: 2, AlertsTriggered: 3}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestStore_IngestCopiesAttributes(t *testing.T) {
	store := newTestStore()
	attrs := map[string]any{"user": "alice"}
	store.Ingest(attrs)
	attrs["user"] = "mallory"

	if got := store.Events()[0].Attributes["user"]; got != "alice" {
		t.Errorf("stored event changed after ingest: user=%v", got)
	}
}

func TestEvent_MarshalJSON(t *testing.T) {
	received := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(WithClock(func() time.Time { return received }))
	store.Ingest(map[string]any{
		"id":          "spoofed",
		"received_at": "yesterday",
		"event_type":  "opa_decision",
		"risk_score":  7.5,
	})

	raw, err := json.Marshal(store.Events()[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["id"] != float64(1) {
		t.Errorf("expected server id 1, got %v", decoded["id"])
	}
	if decoded["received_at"] != "2025-03-01T12:00:00Z" {
		t.Errorf("expected server received_at, got %v", decoded["received_at"])
	}
	if decoded["event_type"] != "opa_decision" || decoded["risk_score"] != 7.5 {
		t.Errorf("expected attributes preserved, got %v", decoded)
	}
}

func TestStore_Metrics(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	store := newTestStore(WithMetrics(metrics))
	store.Ingest(map[string]any{"severity": "HIGH"})
	store.Ingest(map[string]any{"severity": "LOW"})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		if mf.GetType() == dto.MetricType_COUNTER {
			values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if values[MetricEventsIngested] != 2 {
		t.Errorf("expected %s=2, got %v", MetricEventsIngested, values[MetricEventsIngested])
	}
	if values[MetricAlerts] != 1 {
		t.Errorf("expected %s=1, got %v", MetricAlerts, values[MetricAlerts])
	}
}
