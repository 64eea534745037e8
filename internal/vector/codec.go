// Package vector holds the embedding primitives shared by the profile builder,
// the recommendation ranker and the clustering job: decoding of stored vectors
// and cosine-similarity ranking.
package vector

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags which representation a Stored vector carries.
type Kind uint8

const (
	KindNone Kind = iota
	KindValues
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindValues:
		return "values"
	case KindText:
		return "text"
	default:
		return "none"
	}
}

// Stored is a vector as it arrives from storage or the wire. Embeddings are
// persisted either as a native numeric array or as a "[v1,v2,...]" string, so
// the two shapes are kept side by side and only ever read through Decode.
type Stored struct {
	kind   Kind
	values []float64
	text   string
}

// FromValues wraps a native slice. A nil slice yields KindNone.
func FromValues(v []float64) Stored {
	if v == nil {
		return Stored{}
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	return Stored{kind: KindValues, values: cp}
}

// FromText wraps the delimited string form. An empty string yields KindNone.
func FromText(s string) Stored {
	if strings.TrimSpace(s) == "" {
		return Stored{}
	}
	return Stored{kind: KindText, text: s}
}

// FromAny classifies an untyped value, e.g. one decoded from a loosely typed
// JSON document. Shapes that are neither array-like nor string-like give
// KindNone.
func FromAny(v any) Stored {
	switch t := v.(type) {
	case nil:
		return Stored{}
	case Stored:
		return t
	case []float64:
		return FromValues(t)
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return Stored{kind: KindValues, values: out}
	case []any:
		out := make([]float64, len(t))
		for i, e := range t {
			out[i] = anyToFloat(e)
		}
		return Stored{kind: KindValues, values: out}
	case string:
		return FromText(t)
	case []byte:
		return FromText(string(t))
	default:
		return Stored{}
	}
}

func anyToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		return parseToken(n)
	default:
		return math.NaN()
	}
}

// Kind reports which representation s holds.
func (s Stored) Kind() Kind { return s.kind }

// IsZero reports whether s carries no vector at all.
func (s Stored) IsZero() bool { return s.kind == KindNone }

// Len returns the number of components after decoding.
func (s Stored) Len() int { return len(Decode(s)) }

// Decode returns the numeric components of s. An empty result means "no
// vector available" and is never an error. Text tokens that fail to parse
// decode as NaN so callers can skip them per dimension.
func Decode(s Stored) []float64 {
	switch s.kind {
	case KindValues:
		out := make([]float64, len(s.values))
		copy(out, s.values)
		return out
	case KindText:
		return parseText(s.text)
	default:
		return []float64{}
	}
}

// Encode returns the native form used for storage.
func Encode(v []float64) Stored {
	if v == nil {
		v = []float64{}
	}
	return Stored{kind: KindValues, values: append([]float64(nil), v...)}
}

// Format renders v as "[v1,v2,...]", the text layout stored in the embedding
// columns.
func Format(v []float64) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func parseText(s string) []float64 {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '{', '}':
			return -1
		}
		return r
	}, s)
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return []float64{}
	}
	parts := strings.Split(clean, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		out[i] = parseToken(p)
	}
	return out
}

func parseToken(tok string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// UnmarshalJSON accepts a JSON array of numbers or a delimited string. Any
// other JSON value leaves s empty.
func (s *Stored) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Stored{}
		return nil
	}
	switch data[0] {
	case '[':
		var raw []any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		*s = FromAny(raw)
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FromText(str)
	default:
		*s = Stored{}
	}
	return nil
}

// MarshalJSON always emits the decoded numeric array, or null when empty.
func (s Stored) MarshalJSON() ([]byte, error) {
	if s.kind == KindNone {
		return []byte("null"), nil
	}
	v := Decode(s)
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			v[i] = 0
		}
	}
	return json.Marshal(v)
}
