package engine

import (
	"strconv"

	"github.com/trialworks/formengine/pkg/model"
	"go.uber.org/zap"
)

// Session ties the engine components together for one visit being filled
// out: the immutable catalog, the current value store snapshot, and the
// validation mode. All mutation flows through SetValue/LoadValues, which
// always build on the latest snapshot so no edit can be lost to a stale
// copy of the store.
type Session struct {
	catalog    *Catalog
	evaluator  *Evaluator
	validator  *Validator
	serializer *Serializer
	store      *Store
	mode       ValidationMode
	logger     *zap.Logger
}

// NewSession creates a session for the given ordered field list.
func NewSession(fields []model.FieldSchema, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := NewCatalog(fields)
	evaluator := NewEvaluator(catalog)
	validator := NewValidator(catalog, evaluator)
	return &Session{
		catalog:    catalog,
		evaluator:  evaluator,
		validator:  validator,
		serializer: NewSerializer(catalog, evaluator, validator),
		store:      NewStore(),
		mode:       ModeSilent,
		logger:     logger,
	}
}

// Catalog returns the session's field catalog.
func (s *Session) Catalog() *Catalog {
	return s.catalog
}

// Store returns the current value store snapshot.
func (s *Session) Store() *Store {
	return s.store
}

// Mode returns the current validation mode.
func (s *Session) Mode() ValidationMode {
	return s.mode
}

// SetValue records one user edit and runs the reactive recomputation:
// exactly one pass over the calculated fields per mutation. Derivations
// themselves are excluded from the did-anything-relevant-change decision,
// which is what guards against recomputation feedback loops.
func (s *Session) SetValue(k Key, value any) {
	f := s.catalog.ByID(k.FieldID)
	if f == nil {
		s.logger.Warn("value set for unknown field", zap.String("key", k.String()))
		s.store = s.store.Set(k, value)
		return
	}
	if f.FieldType == model.FieldTypeCalculated {
		s.logger.Warn("ignoring user write to calculated field", zap.String("field_id", f.ID))
		return
	}

	s.store = s.store.SetField(f, k, value)
	s.recompute()
}

// LoadValues replaces the store with the given raw value map (keyed by the
// legacy addressable locations) and recomputes derivations once.
func (s *Session) LoadValues(values map[string]any) {
	s.store = StoreFromValues(values)
	s.recompute()
}

// recompute runs the single calculated-field pass: each calculated field
// is evaluated once, in schema order, against the latest snapshot. A
// formula that cannot be computed leaves its field unset rather than
// erroring the form. Formulas only reference entered numeric values,
// never other derivations, so one pass always settles.
func (s *Session) recompute() {
	for _, f := range s.catalog.CalculatedFields() {
		value, ok := s.evaluator.Evaluate(f.CalculationFormula, s.store)
		if !ok {
			s.store = s.store.Set(ValueKey(f.ID), nil)
			continue
		}
		s.store = s.store.Set(ValueKey(f.ID), strconv.FormatFloat(value, 'f', -1, 64))
		s.logger.Debug("calculated field recomputed",
			zap.String("field_id", f.ID),
			zap.Float64("value", value),
		)
	}
}

// CalculatedValues returns the current derivation of every calculated
// field that could be computed.
func (s *Session) CalculatedValues() map[string]string {
	out := map[string]string{}
	for _, f := range s.catalog.CalculatedFields() {
		if v := s.store.GetString(ValueKey(f.ID)); v != "" {
			out[f.ID] = v
		}
	}
	return out
}

// VisibleFieldIDs returns the ids of the currently visible fields in
// schema order.
func (s *Session) VisibleFieldIDs() []string {
	fields := VisibleFields(s.catalog, s.store)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.ID)
	}
	return out
}

// Findings returns the surfaced validation findings: none while the
// session is silent, the full pipeline result once live.
func (s *Session) Findings() []model.Finding {
	if s.mode == ModeSilent {
		return nil
	}
	return s.validator.Validate(s.store)
}

// Validate runs the full pipeline regardless of mode.
func (s *Session) Validate() []model.Finding {
	return s.validator.Validate(s.store)
}

// Submit attempts to finalize the visit. The first attempt flips the
// session to live validation whatever the outcome. When blocking findings
// exist the serializer refuses and the findings are returned alongside
// ErrValidationBlocked; otherwise the canonical record is produced.
func (s *Session) Submit(visit model.VisitInfo) (*model.VisitRecord, []model.Finding, error) {
	s.mode = ModeLive
	s.recompute()

	record, findings, err := s.serializer.Serialize(s.store, visit)
	if err != nil {
		s.logger.Info("submission blocked",
			zap.String("visit", visit.VisitName),
			zap.Int("findings", len(findings)),
		)
		return nil, findings, err
	}

	s.logger.Info("visit record serialized",
		zap.String("visit", visit.VisitName),
		zap.Int("activities", len(record.Activities)),
		zap.Int("warnings", len(record.ValidationErrors)),
	)
	return record, findings, nil
}
