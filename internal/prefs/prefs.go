package prefs

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultID is the key of the singleton preferences row.
const DefaultID = "default"

// WeightMap maps a key (an interest topic or a source id) to a weight.
type WeightMap map[string]float64

// Preferences drive relevance scoring.
type Preferences struct {
	Interests      WeightMap `json:"interests" yaml:"interests"`
	SourceWeights  WeightMap `json:"sourceWeights" yaml:"sourceWeights"`
	MoodBalance    float64   `json:"moodBalance" yaml:"moodBalance"`
	PreferLongForm bool      `json:"preferLongForm" yaml:"preferLongForm"`
	PreferVisual   bool      `json:"preferVisual" yaml:"preferVisual"`
}

// Default returns the preferences a fresh install starts with.
func Default() Preferences {
	return Preferences{
		Interests:     WeightMap{},
		SourceWeights: WeightMap{},
		PreferVisual:  true,
	}
}

// Changes is a partial update. Nil fields are left untouched.
type Changes struct {
	Interests      WeightMap `json:"interests,omitempty" yaml:"interests,omitempty"`
	SourceWeights  WeightMap `json:"sourceWeights,omitempty" yaml:"sourceWeights,omitempty"`
	MoodBalance    *float64  `json:"moodBalance,omitempty" yaml:"moodBalance,omitempty"`
	PreferLongForm *bool     `json:"preferLongForm,omitempty" yaml:"preferLongForm,omitempty"`
	PreferVisual   *bool     `json:"preferVisual,omitempty" yaml:"preferVisual,omitempty"`
}

// Empty reports whether the changes carry no updates.
func (c Changes) Empty() bool {
	return c.Interests == nil && c.SourceWeights == nil && c.MoodBalance == nil &&
		c.PreferLongForm == nil && c.PreferVisual == nil
}

// Merge upserts each key of changes into m; a weight of exactly 0 deletes the
// key. The receiver is not modified.
func (m WeightMap) Merge(changes WeightMap) WeightMap {
	out := m.Clone()
	for key, weight := range changes {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if weight == 0 {
			delete(out, key)
			continue
		}
		out[key] = weight
	}
	return out
}

// Clone returns a copy that never aliases m. A nil map clones to an empty one.
func (m WeightMap) Clone() WeightMap {
	out := make(WeightMap, len(m))
	for key, weight := range m {
		out[key] = weight
	}
	return out
}

// Keys returns the map keys in sorted order.
func (m WeightMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SourceWeight returns the weight for a numeric source id.
func (m WeightMap) SourceWeight(sourceID int64) (float64, bool) {
	weight, ok := m[strconv.FormatInt(sourceID, 10)]
	return weight, ok
}

// MarshalJSON always emits an object, never null.
func (m WeightMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(m))
}

// DecodeWeightMap parses the stored JSON form. Empty input yields an empty map.
func DecodeWeightMap(raw string) (WeightMap, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return WeightMap{}, nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode weight map: %w", err)
	}
	if out == nil {
		return WeightMap{}, nil
	}
	return WeightMap(out), nil
}

// EncodeWeightMap renders the stored JSON form.
func EncodeWeightMap(m WeightMap) (string, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode weight map: %w", err)
	}
	return string(data), nil
}

// Apply merges changes into p. Maps merge per key; moodBalance is clamped to
// [-1, 1]; booleans replace.
func (p Preferences) Apply(changes Changes) Preferences {
	out := p.Clone()
	if changes.Interests != nil {
		out.Interests = out.Interests.Merge(changes.Interests)
	}
	if changes.SourceWeights != nil {
		out.SourceWeights = out.SourceWeights.Merge(changes.SourceWeights)
	}
	if changes.MoodBalance != nil {
		out.MoodBalance = ClampMood(*changes.MoodBalance)
	}
	if changes.PreferLongForm != nil {
		out.PreferLongForm = *changes.PreferLongForm
	}
	if changes.PreferVisual != nil {
		out.PreferVisual = *changes.PreferVisual
	}
	return out
}

// Replace overwrites whole fields, the semantics of an explicit preferences
// update. Maps given here replace the stored maps outright.
func (p Preferences) Replace(changes Changes) Preferences {
	out := p.Clone()
	if changes.Interests != nil {
		out.Interests = changes.Interests.Clone()
	}
	if changes.SourceWeights != nil {
		out.SourceWeights = changes.SourceWeights.Clone()
	}
	if changes.MoodBalance != nil {
		out.MoodBalance = ClampMood(*changes.MoodBalance)
	}
	if changes.PreferLongForm != nil {
		out.PreferLongForm = *changes.PreferLongForm
	}
	if changes.PreferVisual != nil {
		out.PreferVisual = *changes.PreferVisual
	}
	return out
}

// Clone deep-copies the preference maps.
func (p Preferences) Clone() Preferences {
	out := p
	out.Interests = p.Interests.Clone()
	out.SourceWeights = p.SourceWeights.Clone()
	return out
}

// ClampMood bounds a mood balance to [-1, 1]. NaN becomes 0.
func ClampMood(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Max(-1, math.Min(1, value))
}
