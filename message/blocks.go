package message

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// QuantityBlock is a single measured value.
type QuantityBlock struct {
	Value         float64 `json:"Value"`
	UnitOfMeasure string  `json:"UnitOfMeasure"`
}

// Validate checks the block is well formed.
func (q QuantityBlock) Validate() error {
	if strings.TrimSpace(q.UnitOfMeasure) == "" {
		return fmt.Errorf("quantity block: UnitOfMeasure is required")
	}
	if !utf8.ValidString(q.UnitOfMeasure) {
		return fmt.Errorf("quantity block: UnitOfMeasure is not valid UTF-8")
	}
	if math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
		return fmt.Errorf("quantity block: value %v is not finite", q.Value)
	}
	return nil
}

// QuantityArrayBlock is a list of values sharing one unit.
type QuantityArrayBlock struct {
	Values        []float64 `json:"Values"`
	UnitOfMeasure string    `json:"UnitOfMeasure"`
}

// Validate checks the block is well formed.
func (q QuantityArrayBlock) Validate() error {
	if strings.TrimSpace(q.UnitOfMeasure) == "" {
		return fmt.Errorf("quantity array block: UnitOfMeasure is required")
	}
	if !utf8.ValidString(q.UnitOfMeasure) {
		return fmt.Errorf("quantity array block: UnitOfMeasure is not valid UTF-8")
	}
	if len(q.Values) == 0 {
		return fmt.Errorf("quantity array block: at least one value is required")
	}
	for i, v := range q.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("quantity array block: value %d is not finite", i)
		}
	}
	return nil
}

// Equal reports whether both blocks hold the same unit and values.
func (q QuantityArrayBlock) Equal(other QuantityArrayBlock) bool {
	if q.UnitOfMeasure != other.UnitOfMeasure || len(q.Values) != len(other.Values) {
		return false
	}
	for i := range q.Values {
		if q.Values[i] != other.Values[i] {
			return false
		}
	}
	return true
}

func (q QuantityArrayBlock) clone() QuantityArrayBlock {
	return QuantityArrayBlock{Values: append([]float64{}, q.Values...), UnitOfMeasure: q.UnitOfMeasure}
}

// TimeSeriesBlock is a set of named series sampled on a shared time index.
type TimeSeriesBlock struct {
	TimeIndex []time.Time
	Series    map[string]QuantityArrayBlock
}

type timeSeriesWire struct {
	TimeIndex []string                      `json:"TimeIndex"`
	Series    map[string]QuantityArrayBlock `json:"Series"`
}

// Validate checks every series has the same length as the time index.
func (ts TimeSeriesBlock) Validate() error {
	if len(ts.TimeIndex) == 0 {
		return fmt.Errorf("time series block: TimeIndex is empty")
	}
	if len(ts.Series) == 0 {
		return fmt.Errorf("time series block: at least one series is required")
	}
	for _, name := range ts.SeriesNames() {
		series := ts.Series[name]
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("time series block: series name is empty")
		}
		if !utf8.ValidString(name) {
			return fmt.Errorf("time series block: series name %q is not valid UTF-8", name)
		}
		if err := series.Validate(); err != nil {
			return fmt.Errorf("time series block: series %q: %w", name, err)
		}
		if len(series.Values) != len(ts.TimeIndex) {
			return fmt.Errorf("time series block: series %q has %d values for %d time points",
				name, len(series.Values), len(ts.TimeIndex))
		}
	}
	return nil
}

// SeriesNames returns the series names in sorted order.
func (ts TimeSeriesBlock) SeriesNames() []string {
	names := make([]string, 0, len(ts.Series))
	for name := range ts.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether both blocks have the same time index and series.
func (ts TimeSeriesBlock) Equal(other TimeSeriesBlock) bool {
	if len(ts.TimeIndex) != len(other.TimeIndex) || len(ts.Series) != len(other.Series) {
		return false
	}
	for i := range ts.TimeIndex {
		if !ts.TimeIndex[i].Equal(other.TimeIndex[i]) {
			return false
		}
	}
	for name, series := range ts.Series {
		o, ok := other.Series[name]
		if !ok || !series.Equal(o) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the time index in the envelope timestamp format.
func (ts TimeSeriesBlock) MarshalJSON() ([]byte, error) {
	wire := timeSeriesWire{
		TimeIndex: make([]string, len(ts.TimeIndex)),
		Series:    ts.Series,
	}
	for i, t := range ts.TimeIndex {
		wire.TimeIndex[i] = FormatTimestamp(t)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the wire form of the block.
func (ts *TimeSeriesBlock) UnmarshalJSON(data []byte) error {
	var wire timeSeriesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	index := make([]time.Time, len(wire.TimeIndex))
	for i, s := range wire.TimeIndex {
		t, err := ParseTimestamp(s)
		if err != nil {
			return fmt.Errorf("time index %d: %w", i, err)
		}
		index[i] = t
	}
	ts.TimeIndex = index
	ts.Series = wire.Series
	return nil
}

func (ts TimeSeriesBlock) clone() TimeSeriesBlock {
	out := TimeSeriesBlock{
		TimeIndex: make([]time.Time, len(ts.TimeIndex)),
		Series:    make(map[string]QuantityArrayBlock, len(ts.Series)),
	}
	for i, t := range ts.TimeIndex {
		out.TimeIndex[i] = NormalizeTime(t)
	}
	for name, series := range ts.Series {
		out.Series[name] = series.clone()
	}
	return out
}

func validateBlock(value any) error {
	switch v := value.(type) {
	case QuantityBlock:
		return v.Validate()
	case QuantityArrayBlock:
		return v.Validate()
	case TimeSeriesBlock:
		return v.Validate()
	}
	return fmt.Errorf("unsupported block %T", value)
}

// blockUnit returns the unit of a block. Time series report a unit only when every
// series shares it.
func blockUnit(value any) string {
	switch v := value.(type) {
	case QuantityBlock:
		return v.UnitOfMeasure
	case QuantityArrayBlock:
		return v.UnitOfMeasure
	case TimeSeriesBlock:
		unit := ""
		for _, name := range v.SeriesNames() {
			u := v.Series[name].UnitOfMeasure
			if unit != "" && u != unit {
				return ""
			}
			unit = u
		}
		return unit
	}
	return ""
}

// decodeBlock parses a raw JSON block for kind. Strict mode refuses unknown keys
// inside the block.
func decodeBlock(kind Kind, raw json.RawMessage, strict bool) (any, error) {
	switch kind {
	case KindQuantity:
		var q QuantityBlock
		if err := unmarshalBlock(raw, &q, strict, "Value", "UnitOfMeasure"); err != nil {
			return nil, err
		}
		return q, nil
	case KindQuantityArray:
		var q QuantityArrayBlock
		if err := unmarshalBlock(raw, &q, strict, "Values", "UnitOfMeasure"); err != nil {
			return nil, err
		}
		return q, nil
	case KindTimeSeries:
		var ts TimeSeriesBlock
		if err := unmarshalBlock(raw, &ts, strict, "TimeIndex", "Series"); err != nil {
			return nil, err
		}
		return ts, nil
	}
	return nil, fmt.Errorf("kind %s is not a block", kind)
}

func unmarshalBlock(raw json.RawMessage, target any, strict bool, required ...string) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return fmt.Errorf("expected object: %w", err)
	}
	for _, name := range required {
		if _, ok := members[name]; !ok {
			return fmt.Errorf("block attribute %s is missing", name)
		}
	}
	if strict && len(members) > len(required) {
		for name := range members {
			if !contains(required, name) {
				return fmt.Errorf("unexpected block attribute %s", name)
			}
		}
	}
	return json.Unmarshal(raw, target)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
