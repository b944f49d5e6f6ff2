package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// IDSet is a sorted, duplicate-free set of positive entity ids.
//
// Clients send tag and contest lists as a JSON array ([1, "2"]), a comma
// string ("1,2" or "[1,2]") or a single number; UnmarshalJSON accepts all of
// them. Entries that are not positive integers are dropped.
type IDSet []int64

// NewIDSet normalizes ids: non-positive values are dropped, the rest sorted and deduplicated.
func NewIDSet(ids ...int64) IDSet {
	out := make(IDSet, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	uniq := out[:0]
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			uniq = append(uniq, id)
		}
	}
	return uniq
}

// ParseIDList parses "1, 2,3" or "[1,2,3]"; invalid entries are skipped.
func ParseIDList(s string) IDSet {
	cleaned := strings.NewReplacer("[", "", "]", "", " ", "").Replace(s)
	if cleaned == "" {
		return IDSet{}
	}
	var ids []int64
	for _, part := range strings.Split(cleaned, ",") {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return NewIDSet(ids...)
}

func (s IDSet) Int64s() []int64 { return []int64(s) }

func (s IDSet) Contains(id int64) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return i < len(s) && s[i] == id
}

// Missing returns the ids of s that are not in found.
func (s IDSet) Missing(found []int64) []int64 {
	have := NewIDSet(found...)
	var missing []int64
	for _, id := range s {
		if !have.Contains(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int64(s))
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = IDSet{}
		return nil
	}

	switch data[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("id list: %w", err)
		}
		ids := make([]int64, 0, len(raw))
		for _, item := range raw {
			if id, ok := scalarID(item); ok {
				ids = append(ids, id)
			}
		}
		*s = NewIDSet(ids...)
		return nil
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("id list: %w", err)
		}
		*s = ParseIDList(str)
		return nil
	default:
		id, ok := scalarID(data)
		if !ok {
			return fmt.Errorf("id list: unsupported value %s: %w", string(data), ErrValidation)
		}
		*s = NewIDSet(id)
		return nil
	}
}

func scalarID(raw json.RawMessage) (int64, bool) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, false
	}
	if id, err := n.Int64(); err == nil {
		return id, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
