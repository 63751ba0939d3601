package engine

import (
	"errors"
	"strconv"
	"time"

	"github.com/trialworks/formengine/pkg/model"
)

// ErrValidationBlocked is returned when serialization is requested while
// error-severity findings exist. The serializer refuses to run rather than
// producing an output record marked invalid.
var ErrValidationBlocked = errors.New("submission blocked by validation errors")

// Serializer converts a validated value store into the canonical visit
// record consumed by the persistence collaborator.
type Serializer struct {
	catalog   *Catalog
	evaluator *Evaluator
	validator *Validator
}

// NewSerializer creates a Serializer over the catalog.
func NewSerializer(catalog *Catalog, evaluator *Evaluator, validator *Validator) *Serializer {
	return &Serializer{catalog: catalog, evaluator: evaluator, validator: validator}
}

// Serialize validates the store and, when no blocking findings exist,
// produces the output record. The returned findings are always the full
// validation result; on refusal the record is nil and the error is
// ErrValidationBlocked.
func (s *Serializer) Serialize(store *Store, visit model.VisitInfo) (*model.VisitRecord, []model.Finding, error) {
	findings := s.validator.Validate(store)
	if HasBlocking(findings) {
		return nil, findings, ErrValidationBlocked
	}

	record := &model.VisitRecord{
		PatientID:        visit.PatientID,
		ProtocolName:     visit.ProtocolName,
		VisitName:        visit.VisitName,
		VisitType:        visit.VisitType,
		Activities:       []model.ActivityRecord{},
		ValidationErrors: Warnings(findings),
		Timestamp:        time.Now().UTC(),
	}

	for _, f := range VisibleFields(s.catalog, store) {
		record.Activities = append(record.Activities, s.serializeField(f, store))
	}
	return record, findings, nil
}

func (s *Serializer) serializeField(f *model.FieldSchema, store *Store) model.ActivityRecord {
	activity := model.ActivityRecord{
		ID:          f.ID,
		Name:        f.Name,
		FieldType:   f.FieldType,
		HelpText:    f.HelpText,
		Description: f.Description,
		Unit:        f.Unit,
	}

	switch {
	case f.FieldType == model.FieldTypeCalculated:
		// Recomputed fresh at serialization time, never from a cached
		// value. An uncomputable formula leaves the activity unset.
		if value, ok := s.evaluator.Evaluate(f.CalculationFormula, store); ok {
			activity.Value = s.formatNumber(f, value)
		}
	case f.FieldType == model.FieldTypeDateTime:
		m := model.MeasurementRecord{}
		if f.IncludesDate() {
			m.Date = store.GetString(DateKey(f.ID))
		}
		if f.IncludesTime() {
			m.Time = store.GetString(TimeKey(f.ID))
		}
		if m.Date != "" || m.Time != "" {
			activity.Measurements = []model.MeasurementRecord{m}
		}
	case f.AllowMultiple || f.RequireDate || f.RequireTime:
		activity.Measurements = s.serializeMeasurements(f, store)
	case f.FieldType == model.FieldTypeCompoundNumber:
		activity.Value = s.serializeCompound(f, store.Get(ValueKey(f.ID)))
	default:
		raw := store.Get(ValueKey(f.ID))
		if !isEmpty(raw) {
			activity.Value = s.formatLeaf(f, raw)
		}
	}

	return activity
}

// serializeMeasurements groups each measurement with its date and time.
// Times configured on a fixed interval are reconstructed from measurement
// 0's time; measurements carrying no value, date or time are omitted.
func (s *Serializer) serializeMeasurements(f *model.FieldSchema, store *Store) []model.MeasurementRecord {
	var out []model.MeasurementRecord
	for i := 0; i < f.Measurements(); i++ {
		m := model.MeasurementRecord{
			Date: store.MeasurementDate(f, i),
			Time: s.measurementTime(f, store, i),
		}
		raw := store.MeasurementValue(f, i)
		if !isEmpty(raw) {
			if f.FieldType == model.FieldTypeCompoundNumber {
				m.Value = s.serializeCompound(f, raw)
			} else {
				m.Value = coerceString(s.formatLeaf(f, raw))
			}
		}
		if m.Value == nil && m.Date == "" && m.Time == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// measurementTime returns the time for measurement i, deriving it from the
// first measurement's time when a fixed interval is configured.
func (s *Serializer) measurementTime(f *model.FieldSchema, store *Store, i int) string {
	if f.TimeIntervalMinutes != nil && f.AllowMultiple && f.TimePerMeasurement() && i > 0 {
		if t0, ok := normalizeTime(store.GetString(MeasurementTimeKey(f.ID, 0))); ok {
			return addMinutes(t0, i**f.TimeIntervalMinutes)
		}
		return ""
	}
	t := store.MeasurementTime(f, i)
	if normalized, ok := normalizeTime(t); ok {
		return normalized
	}
	return ""
}

// serializeCompound renders a compound record with per-sub-value
// formatting applied.
func (s *Serializer) serializeCompound(f *model.FieldSchema, raw any) any {
	record, ok := raw.(map[string]any)
	if !ok || isEmpty(record) {
		return nil
	}
	out := make(map[string]any, len(record))
	for name, sub := range record {
		out[name] = s.formatLeaf(f, sub)
	}
	return out
}

// formatLeaf applies fixed-precision formatting to one numeric leaf.
// Non-numeric and empty entries pass through unchanged.
func (s *Serializer) formatLeaf(f *model.FieldSchema, raw any) any {
	if f.DecimalPlaces == nil || !f.FieldType.IsNumeric() {
		return raw
	}
	if record, ok := raw.(map[string]any); ok {
		out := make(map[string]any, len(record))
		for name, sub := range record {
			out[name] = s.formatLeaf(f, sub)
		}
		return out
	}
	str := coerceString(raw)
	v, ok := parseNumber(str)
	if !ok {
		return raw
	}
	return strconv.FormatFloat(v, 'f', *f.DecimalPlaces, 64)
}

// formatNumber renders a computed number at the field's precision.
func (s *Serializer) formatNumber(f *model.FieldSchema, value float64) string {
	if f.DecimalPlaces != nil {
		return strconv.FormatFloat(value, 'f', *f.DecimalPlaces, 64)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
