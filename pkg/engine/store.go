package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trialworks/formengine/pkg/model"
)

// KeyKind selects which aspect of a field a key addresses.
type KeyKind int

const (
	// KindValue addresses the entered value itself.
	KindValue KeyKind = iota
	// KindDate addresses an accompanying date.
	KindDate
	// KindTime addresses an accompanying time.
	KindTime
)

// noIndex marks a key that does not address a specific measurement.
const noIndex = -1

// Key is a structured storage location: a field, an aspect of it, and an
// optional measurement index. It replaces the legacy string-concatenated
// locations ("fieldId_date_0") while keeping their exact addressing
// semantics; String renders the legacy form.
type Key struct {
	FieldID string
	Kind    KeyKind
	Index   int
}

// ValueKey addresses a field's value as a whole.
func ValueKey(fieldID string) Key {
	return Key{FieldID: fieldID, Kind: KindValue, Index: noIndex}
}

// MeasurementKey addresses measurement i of a multiplicity field's value.
func MeasurementKey(fieldID string, i int) Key {
	return Key{FieldID: fieldID, Kind: KindValue, Index: i}
}

// DateKey addresses a field's global date.
func DateKey(fieldID string) Key {
	return Key{FieldID: fieldID, Kind: KindDate, Index: noIndex}
}

// MeasurementDateKey addresses measurement i's own date.
func MeasurementDateKey(fieldID string, i int) Key {
	return Key{FieldID: fieldID, Kind: KindDate, Index: i}
}

// TimeKey addresses a field's global time.
func TimeKey(fieldID string) Key {
	return Key{FieldID: fieldID, Kind: KindTime, Index: noIndex}
}

// MeasurementTimeKey addresses measurement i's own time.
func MeasurementTimeKey(fieldID string, i int) Key {
	return Key{FieldID: fieldID, Kind: KindTime, Index: i}
}

// String renders the legacy addressable location for this key. Measurement
// value entries live inside the array stored under the bare field id.
func (k Key) String() string {
	switch k.Kind {
	case KindDate:
		if k.Index == noIndex {
			return k.FieldID + "_date"
		}
		return fmt.Sprintf("%s_date_%d", k.FieldID, k.Index)
	case KindTime:
		if k.Index == noIndex {
			return k.FieldID + "_time"
		}
		return fmt.Sprintf("%s_time_%d", k.FieldID, k.Index)
	default:
		return k.FieldID
	}
}

// Store is the mutable key-to-value map behind a form being filled out.
// All mutation goes through Set/SetField, which return a new store
// (copy-on-write); a snapshot handed to a caller never changes under it.
type Store struct {
	values map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: map[string]any{}}
}

// StoreFromValues builds a store from a raw value map keyed by the legacy
// addressable locations, as delivered by a UI surface. The map is copied.
func StoreFromValues(values map[string]any) *Store {
	s := &Store{values: make(map[string]any, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Values returns the raw value map. Callers must not mutate it.
func (s *Store) Values() map[string]any {
	return s.values
}

// Get returns the value stored at key, or nil. For a measurement value key
// it indexes into the field's measurement array.
func (s *Store) Get(k Key) any {
	if k.Kind == KindValue && k.Index != noIndex {
		arr, ok := s.values[k.FieldID].([]any)
		if !ok || k.Index >= len(arr) {
			return nil
		}
		return arr[k.Index]
	}
	return s.values[k.String()]
}

// GetString returns the value at key coerced to a string.
func (s *Store) GetString(k Key) string {
	return coerceString(s.Get(k))
}

// Set stores value at key and returns the updated store. The receiver is
// left untouched; measurement arrays are copied before modification.
func (s *Store) Set(k Key, value any) *Store {
	next := &Store{values: make(map[string]any, len(s.values)+1)}
	for key, v := range s.values {
		next.values[key] = v
	}

	if k.Kind == KindValue && k.Index != noIndex {
		var arr []any
		if existing, ok := s.values[k.FieldID].([]any); ok {
			arr = make([]any, len(existing))
			copy(arr, existing)
		}
		for len(arr) <= k.Index {
			arr = append(arr, nil)
		}
		arr[k.Index] = value
		next.values[k.FieldID] = arr
		return next
	}

	next.values[k.String()] = value
	return next
}

// SetField stores a value for the given field, applying field-aware
// normalization: times are normalized to HH:MM (invalid times are cleared,
// not flagged), and when a fixed measurement interval is configured,
// setting measurement 0's time derives every subsequent measurement's time.
func (s *Store) SetField(f *model.FieldSchema, k Key, value any) *Store {
	// The populated measurement range never exceeds repeatCount.
	if k.Index != noIndex && k.Index >= f.Measurements() {
		return s
	}
	if k.Kind != KindTime {
		return s.Set(k, value)
	}

	normalized, ok := normalizeTime(coerceString(value))
	if !ok {
		normalized = ""
	}
	next := s.Set(k, normalized)

	if f.TimeIntervalMinutes != nil && k.Index == 0 && normalized != "" {
		for i := 1; i < f.Measurements(); i++ {
			derived := addMinutes(normalized, i**f.TimeIntervalMinutes)
			next = next.Set(MeasurementTimeKey(f.ID, i), derived)
		}
	}
	return next
}

// HasValue reports whether a non-empty value exists for the field, at the
// given measurement index when one is supplied.
func (s *Store) HasValue(f *model.FieldSchema, index *int) bool {
	if index != nil {
		return !isEmpty(s.MeasurementValue(f, *index))
	}
	if f.AllowMultiple {
		for i := 0; i < f.Measurements(); i++ {
			if !isEmpty(s.MeasurementValue(f, i)) {
				return true
			}
		}
		return false
	}
	return !isEmpty(s.Get(ValueKey(f.ID)))
}

// MeasurementValue returns measurement i's value for the field. For a field
// without multiplicity, index 0 addresses the value itself.
func (s *Store) MeasurementValue(f *model.FieldSchema, i int) any {
	if !f.AllowMultiple {
		if i == 0 {
			return s.Get(ValueKey(f.ID))
		}
		return nil
	}
	return s.Get(MeasurementKey(f.ID, i))
}

// MeasurementDate returns the date accompanying measurement i, honoring the
// per-measurement versus shared-global configuration.
func (s *Store) MeasurementDate(f *model.FieldSchema, i int) string {
	if f.AllowMultiple && f.DatePerMeasurement() {
		return s.GetString(MeasurementDateKey(f.ID, i))
	}
	return s.GetString(DateKey(f.ID))
}

// MeasurementTime returns the time accompanying measurement i, honoring the
// per-measurement versus shared-global configuration.
func (s *Store) MeasurementTime(f *model.FieldSchema, i int) string {
	if f.AllowMultiple && f.TimePerMeasurement() {
		return s.GetString(MeasurementTimeKey(f.ID, i))
	}
	return s.GetString(TimeKey(f.ID))
}

// isEmpty reports whether a raw value counts as absent: nil, empty or
// blank string, or an empty collection.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		for _, e := range t {
			if !isEmpty(e) {
				return false
			}
		}
		return true
	case []string:
		return len(t) == 0
	case map[string]any:
		for _, e := range t {
			if !isEmpty(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// coerceString renders a raw value as the string the user effectively
// entered. Numbers come back from JSON as float64.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// normalizeTime reduces a clock string to HH:MM, truncating seconds. An
// out-of-range or malformed time is reported as invalid; callers clear it
// rather than raising a finding.
func normalizeTime(raw string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 {
		return "", false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// addMinutes advances a normalized HH:MM time, wrapping across midnight.
// No date rollover is tracked.
func addMinutes(t string, minutes int) string {
	hour, _ := strconv.Atoi(t[:2])
	minute, _ := strconv.Atoi(t[3:])
	total := (hour*60 + minute + minutes) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
