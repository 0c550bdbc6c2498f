package workflow

import (
	"sort"
	"strings"
)

// Normalizer converts raw scanner findings into ordered ViolationRecords.
// Normalize is pure: identical input always yields an identical sequence,
// which streak detection relies on.
type Normalizer struct{}

// NewNormalizer creates a violation normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize maps raw findings to records, drops exact duplicates and orders
// them by severity desc, id asc, affected resource asc.
func (n *Normalizer) Normalize(raw []RawFinding) []ViolationRecord {
	records := make([]ViolationRecord, 0, len(raw))
	seen := make(map[ViolationRecord]struct{}, len(raw))

	for _, f := range raw {
		rec := ViolationRecord{
			ID:               strings.TrimSpace(f.CheckID),
			Title:            strings.TrimSpace(f.CheckName),
			AffectedResource: strings.TrimSpace(f.Resource),
			Severity:         ParseSeverity(f.Severity),
			Guidance:         strings.TrimSpace(f.Guideline),
		}
		if rec.ID == "" {
			continue
		}
		if rec.Title == "" {
			rec.Title = rec.ID
		}
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}
		records = append(records, rec)
	}

	SortViolations(records)
	return records
}

// SortViolations orders records by severity desc, id asc, affected resource asc.
// Title and guidance break remaining ties so the order is total.
func SortViolations(records []ViolationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.AffectedResource != b.AffectedResource {
			return a.AffectedResource < b.AffectedResource
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Guidance < b.Guidance
	})
}

// DedupeByIdentity keeps the first record of each identity, preserving order.
func DedupeByIdentity(records []ViolationRecord) []ViolationRecord {
	out := make([]ViolationRecord, 0, len(records))
	seen := make(map[ViolationIdentity]struct{}, len(records))
	for _, r := range records {
		id := r.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CountBySeverity tallies records per severity label.
func CountBySeverity(records []ViolationRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[string(r.Severity)]++
	}
	return counts
}
