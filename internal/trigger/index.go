package trigger

import (
	"strings"

	"github.com/ignite/stayadmin/internal/domain"
)

// Index is a per-booking lookup table over answer records. It is built once
// in O(n) and answers ByKey/ByText in O(1). When the same question appears
// twice the later record in submission order wins.
type Index struct {
	byKey  map[string]int
	byText map[string]int
	// keyless maps question text to the slot of the latest keyless record,
	// which byText loses once a keyed record shares the text.
	keyless map[string]int
	// records holds one slot per distinct question in first-seen order.
	records []domain.AnswerRecord
}

// NewIndex builds an index from a booking's answers in submission order.
func NewIndex(answers []domain.AnswerRecord) *Index {
	idx := &Index{
		byKey:   make(map[string]int, len(answers)),
		byText:  make(map[string]int, len(answers)),
		keyless: make(map[string]int),
		records: make([]domain.AnswerRecord, 0, len(answers)),
	}
	for _, rec := range answers {
		idx.add(rec)
	}
	return idx
}

func (idx *Index) add(rec domain.AnswerRecord) {
	key := strings.TrimSpace(rec.QuestionKey)
	text := textKey(rec.QuestionText)

	slot := -1
	if key != "" {
		if i, ok := idx.byKey[key]; ok {
			slot = i
		}
	} else if text != "" {
		// Keyless legacy rows only collapse onto other keyless rows.
		if i, ok := idx.keyless[text]; ok {
			slot = i
		}
	}

	if slot >= 0 {
		idx.records[slot] = rec
	} else {
		slot = len(idx.records)
		idx.records = append(idx.records, rec)
	}

	if key != "" {
		idx.byKey[key] = slot
	} else if text != "" {
		idx.keyless[text] = slot
	}
	if text != "" {
		idx.byText[text] = slot
	}
}

// ByKey returns the record for a stable question key.
func (idx *Index) ByKey(key string) (domain.AnswerRecord, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.AnswerRecord{}, false
	}
	i, ok := idx.byKey[key]
	if !ok {
		return domain.AnswerRecord{}, false
	}
	return idx.records[i], true
}

// ByText returns the record whose question text matches, ignoring case and
// differences in whitespace.
func (idx *Index) ByText(text string) (domain.AnswerRecord, bool) {
	t := textKey(text)
	if t == "" {
		return domain.AnswerRecord{}, false
	}
	i, ok := idx.byText[t]
	if !ok {
		return domain.AnswerRecord{}, false
	}
	return idx.records[i], true
}

// Resolve is the two-step question lookup: by key first, then by text.
func (idx *Index) Resolve(key, text string) (domain.AnswerRecord, bool) {
	if rec, ok := idx.ByKey(key); ok {
		return rec, true
	}
	return idx.ByText(text)
}

// Records returns one record per distinct question, in first-seen order.
func (idx *Index) Records() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, len(idx.records))
	copy(out, idx.records)
	return out
}

// Len returns the number of distinct questions answered.
func (idx *Index) Len() int { return len(idx.records) }

func textKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
