package stream

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/sentinel/internal/tail"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	out := make(map[string]*dto.Metric)
	for _, mf := range families {
		out[mf.GetName()] = mf.GetMetric()[0]
	}
	return out
}

func TestPublisher_DeliversToAllSubscribers(t *testing.T) {
	p := NewPublisher(4, WithLogger(quietLogger()))
	a := p.Subscribe()
	b := p.Subscribe()

	batch := []tail.Record{{"actor": "alice"}}
	p.Publish(batch)

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		select {
		case got := <-sub.C():
			if len(got) != 1 || got[0]["actor"] != "alice" {
				t.Errorf("subscriber %s: unexpected batch %v", name, got)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %s: no batch delivered", name)
		}
	}
}

func TestPublisher_LateSubscriberGetsNoHistory(t *testing.T) {
	p := NewPublisher(4, WithLogger(quietLogger()))
	p.Publish([]tail.Record{{"n": 1}})

	sub := p.Subscribe()
	select {
	case got := <-sub.C():
		t.Errorf("expected no replay, got %v", got)
	default:
	}
}

func TestPublisher_FullQueueDropsForThatSubscriberOnly(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatal(err)
	}

	p := NewPublisher(1, WithLogger(quietLogger()), WithMetrics(metrics))
	slow := p.Subscribe()
	fast := p.Subscribe()

	p.Publish([]tail.Record{{"n": 1}})
	<-fast.C()
	p.Publish([]tail.Record{{"n": 2}})

	if got := <-fast.C(); got[0]["n"] != 2 {
		t.Errorf("fast subscriber: expected second batch, got %v", got)
	}
	if got := <-slow.C(); got[0]["n"] != 1 {
		t.Errorf("slow subscriber: expected first batch, got %v", got)
	}
	select {
	case got := <-slow.C():
		t.Errorf("slow subscriber: expected second batch to be dropped, got %v", got)
	default:
	}

	m := gather(t, reg)
	if v := m[MetricBatchesDropped].GetCounter().GetValue(); v != 1 {
		t.Errorf("expected 1 dropped batch, got %v", v)
	}
	if v := m[MetricRecordsPublished].GetCounter().GetValue(); v != 2 {
		t.Errorf("expected 2 records published, got %v", v)
	}
	if v := m[MetricSubscribers].GetGauge().GetValue(); v != 2 {
		t.Errorf("expected 2 subscribers, got %v", v)
	}
}

func TestPublisher_Unsubscribe(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatal(err)
	}

	p := NewPublisher(1, WithLogger(quietLogger()), WithMetrics(metrics))
	sub := p.Subscribe()
	p.Unsubscribe(sub)
	p.Unsubscribe(sub)

	if p.Count() != 0 {
		t.Errorf("expected no subscribers, got %d", p.Count())
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected channel to be closed")
	}

	p.Publish([]tail.Record{{"n": 1}})

	if v := gather(t, reg)[MetricSubscribers].GetGauge().GetValue(); v != 0 {
		t.Errorf("expected subscriber gauge 0, got %v", v)
	}
}

func TestPublisher_PublishNeverBlocks(t *testing.T) {
	p := NewPublisher(1, WithLogger(quietLogger()))
	p.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Publish([]tail.Record{{"n": i}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a subscriber that never reads")
	}
}

func TestPublisher_DefaultBuffer(t *testing.T) {
	p := NewPublisher(0)
	sub := p.Subscribe()
	if cap(sub.ch) != DefaultBuffer {
		t.Errorf("expected buffer %d, got %d", DefaultBuffer, cap(sub.ch))
	}
}
