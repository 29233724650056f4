package trigger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/stayadmin/internal/domain"
)

// AnswerKind tags the shape of a normalized answer.
type AnswerKind int

const (
	Absent AnswerKind = iota
	Scalar
	MultiValue
	Structured
)

func (k AnswerKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case MultiValue:
		return "multi-value"
	case Structured:
		return "structured"
	default:
		return "absent"
	}
}

// Answer is the canonical form of a stored answer value. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Answer struct {
	kind       AnswerKind
	scalar     string
	values     []string
	structured any
}

// ScalarAnswer builds a Scalar answer from an already-normalized string.
func ScalarAnswer(s string) Answer { return Answer{kind: Scalar, scalar: s} }

// MultiAnswer builds a MultiValue answer from already-normalized values.
func MultiAnswer(values ...string) Answer { return Answer{kind: MultiValue, values: values} }

func (a Answer) Kind() AnswerKind { return a.kind }
func (a Answer) IsAbsent() bool   { return a.kind == Absent }
func (a Answer) Scalar() string   { return a.scalar }
func (a Answer) Values() []string { return a.values }
func (a Answer) Structured() any  { return a.structured }

// String renders the answer for diagnostics.
func (a Answer) String() string {
	switch a.kind {
	case Scalar:
		return strconv.Quote(a.scalar)
	case MultiValue:
		return "[" + strings.Join(a.values, ", ") + "]"
	case Structured:
		b, _ := json.Marshal(a.structured)
		return string(b)
	default:
		return "<absent>"
	}
}

// Normalize canonicalises a raw stored answer. Rules, in order:
//
//  1. nil or blank string → Absent
//  2. bool → Scalar("yes"|"no")
//  3. native array → MultiValue (trimmed, lowercased, blanks dropped)
//  4. JSON array string → MultiValue, JSON object string → Structured
//  5. comma/pipe delimited string on a multi-choice question → MultiValue
//  6. anything else → Scalar(trimmed, lowercased)
//
// Native objects are Structured so that Normalize(Render(a)) == a.
func Normalize(raw any, qt domain.QuestionType) Answer {
	switch v := raw.(type) {
	case nil:
		return Answer{}
	case bool:
		if v {
			return ScalarAnswer("yes")
		}
		return ScalarAnswer("no")
	case string:
		return normalizeString(v, qt)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return normalizeString(string(v), qt)
		}
		return Normalize(decoded, qt)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return multiOf(items)
	case []any:
		return multiOf(v)
	case map[string]any:
		return structuredOf(v)
	default:
		return scalarOf(toString(v))
	}
}

// Render returns the native value of a normalized answer.
func Render(a Answer) any {
	switch a.kind {
	case Scalar:
		return a.scalar
	case MultiValue:
		out := make([]any, len(a.values))
		for i, s := range a.values {
			out[i] = s
		}
		return out
	case Structured:
		return a.structured
	default:
		return nil
	}
}

func normalizeString(s string, qt domain.QuestionType) Answer {
	s = strings.TrimSpace(s)
	if s == "" {
		return Answer{}
	}

	switch s[0] {
	case '[':
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			return multiOf(items)
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			return structuredOf(obj)
		}
	}

	if qt == domain.QuestionMultiChoice && strings.ContainsAny(s, ",|") {
		parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' })
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = p
		}
		return multiOf(items)
	}

	return scalarOf(s)
}

func scalarOf(s string) Answer {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Answer{}
	}
	return ScalarAnswer(s)
}

func multiOf(items []any) Answer {
	values := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		s := strings.ToLower(strings.TrimSpace(toString(item)))
		if s == "" {
			continue
		}
		values = append(values, s)
	}
	if len(values) == 0 {
		return Answer{}
	}
	return Answer{kind: MultiValue, values: values}
}

func structuredOf(obj map[string]any) Answer {
	if len(obj) == 0 {
		return Answer{}
	}
	return Answer{kind: Structured, structured: normalizeStructured(obj)}
}

// normalizeStructured lowercases and trims every string leaf. Keys are
// trimmed but keep their case.
func normalizeStructured(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.TrimSpace(k)] = normalizeStructured(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeStructured(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = strings.ToLower(strings.TrimSpace(val))
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return t
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
