package correlate

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/onnwee/sentinel/internal/tail"
)

func TestCorrelate_CrossSourceActors(t *testing.T) {
	records := []tail.Record{
		{"actor": "a", "cloud": "aws", "severity": 5},
		{"actor": "a", "cloud": "gcp", "severity": 1},
		{"actor": "b", "cloud": "aws", "severity": 1},
	}

	got := Correlate(records)
	want := []ActorCorrelation{
		{Actor: "a", Sources: []string{"aws", "gcp"}, TotalEvents: 2, HighSeverityCount: 1, Correlated: true},
		{Actor: "b", Sources: []string{"aws"}, TotalEvents: 1, HighSeverityCount: 0, Correlated: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Correlate() = %+v, want %+v", got, want)
	}
}

func TestCorrelate_OrderIndependent(t *testing.T) {
	records := []tail.Record{
		{"actor": "a", "cloud": "gcp", "severity": 1},
		{"actor": "b", "cloud": "aws", "severity": 1},
		{"actor": "a", "cloud": "aws", "severity": 5},
		{"actor": "c", "cloud": "azure", "severity": 4},
		{"actor": "a", "cloud": "gcp", "severity": 9},
	}
	reversed := make([]tail.Record, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	if !reflect.DeepEqual(Correlate(records), Correlate(reversed)) {
		t.Error("correlation depends on record order")
	}
}

func TestCorrelate_SkipsRecordsWithoutActor(t *testing.T) {
	records := []tail.Record{
		{"cloud": "aws", "severity": 9},
		{"actor": 42, "cloud": "aws"},
		{"actor": "", "cloud": "aws"},
		{"actor": "a", "cloud": "aws"},
	}

	got := Correlate(records)
	if len(got) != 1 || got[0].Actor != "a" {
		t.Fatalf("expected only actor a, got %+v", got)
	}
	if got[0].TotalEvents != 1 {
		t.Errorf("expected 1 event for a, got %d", got[0].TotalEvents)
	}
}

func TestCorrelate_FieldFallbacks(t *testing.T) {
	records := []tail.Record{
		{"user": "alice", "source": "opa"},
		{"actor": "alice", "cloud": "aws"},
		{"actor": "alice", "user": "ignored", "cloud": "aws", "source": "ignored"},
	}

	got := Correlate(records)
	if len(got) != 1 {
		t.Fatalf("expected one actor, got %+v", got)
	}
	if !reflect.DeepEqual(got[0].Sources, []string{"aws", "opa"}) {
		t.Errorf("expected sources [aws opa], got %v", got[0].Sources)
	}
	if got[0].TotalEvents != 3 || !got[0].Correlated {
		t.Errorf("unexpected aggregate %+v", got[0])
	}
}

func TestCorrelate_SeverityTypes(t *testing.T) {
	tests := []struct {
		name     string
		severity any
		high     bool
	}{
		{"float64 at threshold", float64(4), true},
		{"float64 below", 3.9, false},
		{"int", 7, true},
		{"int64", int64(4), true},
		{"uint8", uint8(200), true},
		{"json number", json.Number("4.5"), true},
		{"json number low", json.Number("1"), false},
		{"numeric string", "9", false},
		{"label string", "HIGH", false},
		{"missing", nil, false},
		{"bool", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tail.Record{"actor": "a"}
			if tt.severity != nil {
				rec["severity"] = tt.severity
			}
			got := Correlate([]tail.Record{rec})
			want := 0
			if tt.high {
				want = 1
			}
			if got[0].HighSeverityCount != want {
				t.Errorf("expected high_severity_count %d, got %d", want, got[0].HighSeverityCount)
			}
		})
	}
}

func TestCorrelate_MissingSource(t *testing.T) {
	got := Correlate([]tail.Record{{"actor": "a"}, {"actor": "a", "cloud": "aws"}})
	if !reflect.DeepEqual(got[0].Sources, []string{"aws"}) || got[0].Correlated {
		t.Errorf("expected a single source and no correlation, got %+v", got[0])
	}
	if got[0].TotalEvents != 2 {
		t.Errorf("expected both events counted, got %d", got[0].TotalEvents)
	}
}

func TestCorrelate_EmptyInput(t *testing.T) {
	got := Correlate(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	out, _ := json.Marshal(got)
	if string(out) != "[]" {
		t.Errorf("expected [] JSON, got %s", out)
	}
}

func TestActorCorrelation_JSON(t *testing.T) {
	out, err := json.Marshal(ActorCorrelation{Actor: "a", Sources: []string{"aws"}, TotalEvents: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"actor":"a","sources":["aws"],"total_events":1,"high_severity_count":0,"correlated":false}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestStringSet(t *testing.T) {
	s := newStringSet()
	for _, v := range []string{"gcp", "aws", "gcp", "azure", "aws"} {
		s.Add(v)
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 members, got %d", s.Len())
	}
	if !reflect.DeepEqual(s.Sorted(), []string{"aws", "azure", "gcp"}) {
		t.Errorf("unexpected members %v", s.Sorted())
	}
}

func TestCorrelate_RepeatedSourceIsNotCorrelated(t *testing.T) {
	got := Correlate([]tail.Record{
		{"actor": "a", "cloud": "aws"},
		{"actor": "a", "cloud": "aws"},
		{"actor": "a", "cloud": "aws"},
	})
	if len(got) != 1 {
		t.Fatalf("expected one actor, got %v", got)
	}
	if got[0].Correlated || len(got[0].Sources) != 1 || got[0].TotalEvents != 3 {
		t.Errorf("repeated events from one source must not correlate, got %+v", got[0])
	}
}
