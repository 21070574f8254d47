package search

import (
	"strconv"

	"foodlog/searchservice/internal/domain"
)

// DedupeKind tells which key matched when a record is dropped.
type DedupeKind string

const (
	DedupeSourceID DedupeKind = "source_id"
	DedupeContent  DedupeKind = "content"
)

// deduper tracks records seen within one search session. Both keys are
// recorded on admit so a later record matching either is dropped.
// Not safe for concurrent use; callers hold the session lock.
type deduper struct {
	seenSourceIDs map[string]struct{}
	seenContent   map[string]struct{}
}

func newDeduper() *deduper {
	return &deduper{
		seenSourceIDs: make(map[string]struct{}),
		seenContent:   make(map[string]struct{}),
	}
}

func sourceIDKey(r domain.NutritionRecord) string {
	if r.SourceID == nil {
		return ""
	}
	return string(r.Source) + ":" + strconv.FormatInt(*r.SourceID, 10)
}

// Admit reports whether the record is new to the session. Duplicates return
// the key kind that matched.
func (d *deduper) Admit(r domain.NutritionRecord) (bool, DedupeKind) {
	idKey := sourceIDKey(r)
	contentKey := r.ContentKey()

	if idKey != "" {
		if _, dup := d.seenSourceIDs[idKey]; dup {
			return false, DedupeSourceID
		}
	}
	if _, dup := d.seenContent[contentKey]; dup {
		return false, DedupeContent
	}

	if idKey != "" {
		d.seenSourceIDs[idKey] = struct{}{}
	}
	d.seenContent[contentKey] = struct{}{}
	return true, ""
}
