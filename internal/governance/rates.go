package governance

import (
	"sort"
	"strings"
	"time"
)

// RateEntry is an hourly rate for a staff grade over an effective period.
// EffectiveTo is exclusive; nil means open-ended.
type RateEntry struct {
	Grade         string     `json:"grade" yaml:"grade"`
	HourlyRate    Money      `json:"hourly_rate" yaml:"hourly_rate"`
	EffectiveFrom time.Time  `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
}

func (e RateEntry) covers(at time.Time) bool {
	if at.Before(e.EffectiveFrom) {
		return false
	}
	return e.EffectiveTo == nil || at.Before(*e.EffectiveTo)
}

// RateLookup resolves the hourly rate for a grade at a date.
type RateLookup interface {
	Rate(grade string, asOf time.Time) (Money, bool)
}

// RateTable is a versioned grade → hourly rate mapping with history.
type RateTable struct {
	Version string      `json:"version" yaml:"version"`
	Entries []RateEntry `json:"entries" yaml:"entries"`
}

// NormalizeGrade canonicalises a staff grade key.
func NormalizeGrade(grade string) string {
	return strings.ToLower(strings.TrimSpace(grade))
}

// Rate returns the rate effective at asOf. When periods overlap the most
// recently started entry wins.
func (t *RateTable) Rate(grade string, asOf time.Time) (Money, bool) {
	if t == nil {
		return 0, false
	}
	key := NormalizeGrade(grade)
	var (
		best  *RateEntry
		found bool
	)
	for i := range t.Entries {
		e := &t.Entries[i]
		if NormalizeGrade(e.Grade) != key || !e.covers(asOf) {
			continue
		}
		if !found || e.EffectiveFrom.After(best.EffectiveFrom) {
			best, found = e, true
		}
	}
	if !found {
		return 0, false
	}
	return best.HourlyRate, true
}

// Grades lists the distinct grades known to the table.
func (t *RateTable) Grades() []string {
	seen := make(map[string]struct{})
	var grades []string
	for _, e := range t.Entries {
		g := NormalizeGrade(e.Grade)
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		grades = append(grades, g)
	}
	sort.Strings(grades)
	return grades
}

// Snapshot returns the entries effective at asOf as a single-period table,
// so a valuation can be stored with exactly the rates it used.
func (t *RateTable) Snapshot(asOf time.Time) *RateTable {
	snap := &RateTable{Version: t.Version}
	for _, g := range t.Grades() {
		if rate, ok := t.Rate(g, asOf); ok {
			snap.Entries = append(snap.Entries, RateEntry{Grade: g, HourlyRate: rate, EffectiveFrom: asOf})
		}
	}
	return snap
}
