// Package correlate groups security events by actor and flags actors seen
// across more than one source.
package correlate

import (
	"encoding/json"
	"sort"

	"github.com/onnwee/sentinel/internal/tail"
)

// HighSeverity is the threshold at or above which a numeric severity is high.
const HighSeverity = 4

// Field names read from each record, in lookup order.
var (
	actorKeys  = []string{"actor", "user"}
	sourceKeys = []string{"cloud", "source"}
)

// ActorCorrelation summarizes one actor's events.
type ActorCorrelation struct {
	Actor             string   `json:"actor"`
	Sources           []string `json:"sources"`
	TotalEvents       int      `json:"total_events"`
	HighSeverityCount int      `json:"high_severity_count"`
	Correlated        bool     `json:"correlated"`
}

// Correlate aggregates records by actor. Records without a non-empty string
// actor are skipped. The result is sorted by actor and each Sources slice is sorted, so
// the output depends only on the set of records, not their order.
func Correlate(records []tail.Record) []ActorCorrelation {
	type group struct {
		sources *stringSet
		total   int
		high    int
	}
	groups := make(map[string]*group)

	for _, rec := range records {
		actor, ok := stringField(rec, actorKeys)
		if !ok || actor == "" {
			continue
		}
		g, exists := groups[actor]
		if !exists {
			g = &group{sources: newStringSet()}
			groups[actor] = g
		}
		g.total++
		if source, ok := stringField(rec, sourceKeys); ok {
			g.sources.Add(source)
		}
		if sev, ok := numeric(rec["severity"]); ok && sev >= HighSeverity {
			g.high++
		}
	}

	out := make([]ActorCorrelation, 0, len(groups))
	for actor, g := range groups {
		out = append(out, ActorCorrelation{
			Actor:             actor,
			Sources:           g.sources.Sorted(),
			TotalEvents:       g.total,
			HighSeverityCount: g.high,
			Correlated:        g.sources.Len() > 1,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Actor < out[j].Actor })
	return out
}

// stringField returns the first key in keys holding a string value.
func stringField(rec tail.Record, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			s, isString := v.(string)
			return s, isString
		}
	}
	return "", false
}

// numeric converts JSON and Go numeric values to float64. Strings and other
// types are not numeric, even when they look like numbers.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
