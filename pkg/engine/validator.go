package engine

import (
	"fmt"
	"strings"

	"github.com/trialworks/formengine/pkg/model"
)

// ValidationMode is the explicit two-state validation protocol. Findings
// are computed either way; silent mode only controls whether a UI surface
// shows them before the first submit attempt.
type ValidationMode int

const (
	// ModeSilent is the state before the first submit attempt: findings
	// are not surfaced.
	ModeSilent ValidationMode = iota
	// ModeLive is the state after the first submit attempt: every edit
	// re-runs the pipeline and surfaces findings immediately.
	ModeLive
)

// String implements fmt.Stringer.
func (m ValidationMode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "silent"
}

// Rule identifiers attached to findings.
const (
	ruleRequired         = "required"
	ruleRequireDate      = "requireDate"
	ruleRequireTime      = "requireTime"
	ruleRequiredOptions  = "requiredOptions"
	ruleExclusiveOptions = "exclusiveOptions"
)

// Validator runs the ordered per-field rule pipeline over a value store
// snapshot. It is deterministic and side-effect free: identical inputs
// always produce identical findings, and every applicable rule runs (no
// short-circuit on first failure).
type Validator struct {
	catalog   *Catalog
	evaluator *Evaluator
}

// NewValidator creates a Validator over the catalog, using the evaluator
// for formula-threshold rules.
func NewValidator(catalog *Catalog, evaluator *Evaluator) *Validator {
	return &Validator{catalog: catalog, evaluator: evaluator}
}

// Validate checks every currently visible field and returns all findings.
// Hidden fields are skipped entirely; their stored values are preserved
// but never judged.
func (v *Validator) Validate(store *Store) []model.Finding {
	var findings []model.Finding
	for _, f := range VisibleFields(v.catalog, store) {
		findings = append(findings, v.validateField(f, store)...)
	}
	return findings
}

// HasBlocking reports whether any finding carries error severity.
func HasBlocking(findings []model.Finding) bool {
	for _, f := range findings {
		if f.IsBlocking() {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking findings, which are attached to the
// serialized output record.
func Warnings(findings []model.Finding) []model.Finding {
	out := []model.Finding{}
	for _, f := range findings {
		if !f.IsBlocking() {
			out = append(out, f)
		}
	}
	return out
}

// validateField builds and runs the pipeline relevant to one field's
// configuration.
func (v *Validator) validateField(f *model.FieldSchema, store *Store) []model.Finding {
	var findings []model.Finding

	findings = append(findings, v.checkRequired(f, store)...)
	findings = append(findings, v.checkDateTime(f, store)...)
	if f.FieldType == model.FieldTypeSingleSelect {
		findings = append(findings, v.checkRequiredOptions(f, store)...)
		findings = append(findings, v.checkExclusiveOptions(f, store)...)
	}
	findings = append(findings, v.checkRules(f, store)...)

	return findings
}

// checkRequired enforces presence according to the field's shape: each
// configured sub-component for date-time fields, at least one measurement
// for multiplicity fields, a non-empty value otherwise.
func (v *Validator) checkRequired(f *model.FieldSchema, store *Store) []model.Finding {
	if !f.Required {
		return nil
	}

	var findings []model.Finding
	switch {
	case f.FieldType == model.FieldTypeDateTime:
		if f.IncludesDate() && store.GetString(DateKey(f.ID)) == "" {
			findings = append(findings, v.finding(f, ruleRequired, model.SeverityError, "A date is required", nil, nil))
		}
		if f.IncludesTime() && !timePresent(store, TimeKey(f.ID)) {
			findings = append(findings, v.finding(f, ruleRequired, model.SeverityError, "A time is required", nil, nil))
		}
	case f.AllowMultiple:
		if !store.HasValue(f, nil) {
			findings = append(findings, v.finding(f, ruleRequired, model.SeverityError, "At least one measurement is required", nil, nil))
		}
	default:
		if !store.HasValue(f, nil) {
			findings = append(findings, v.finding(f, ruleRequired, model.SeverityError, "A value is required", nil, nil))
		}
	}
	return findings
}

// checkDateTime enforces the conditional date/time necessity: a date or
// time is demanded only where a value has actually been entered. For
// multiplicity fields with per-measurement capture the check runs per
// present measurement; a shared global date/time is checked once as soon
// as any measurement is present.
func (v *Validator) checkDateTime(f *model.FieldSchema, store *Store) []model.Finding {
	if f.FieldType == model.FieldTypeDateTime || (!f.RequireDate && !f.RequireTime) {
		return nil
	}

	var findings []model.Finding

	if f.AllowMultiple {
		for i := 0; i < f.Measurements(); i++ {
			idx := i
			if !store.HasValue(f, &idx) {
				continue
			}
			if f.RequireDate && f.DatePerMeasurement() && store.GetString(MeasurementDateKey(f.ID, i)) == "" {
				findings = append(findings, v.finding(f, ruleRequireDate, model.SeverityError, v.indexed("A date is required", i), nil, &idx))
			}
			if f.RequireTime && f.TimePerMeasurement() && !timePresent(store, MeasurementTimeKey(f.ID, i)) {
				// With a fixed interval only measurement 0's time is
				// user-entered; later times derive from it.
				if f.TimeIntervalMinutes == nil || i == 0 {
					findings = append(findings, v.finding(f, ruleRequireTime, model.SeverityError, v.indexed("A time is required", i), nil, &idx))
				}
			}
		}
		if store.HasValue(f, nil) {
			if f.RequireDate && !f.DatePerMeasurement() && store.GetString(DateKey(f.ID)) == "" {
				findings = append(findings, v.finding(f, ruleRequireDate, model.SeverityError, "A date is required", nil, nil))
			}
			if f.RequireTime && !f.TimePerMeasurement() && !timePresent(store, TimeKey(f.ID)) {
				findings = append(findings, v.finding(f, ruleRequireTime, model.SeverityError, "A time is required", nil, nil))
			}
		}
		return findings
	}

	if !store.HasValue(f, nil) {
		return nil
	}
	if f.RequireDate && store.GetString(DateKey(f.ID)) == "" {
		findings = append(findings, v.finding(f, ruleRequireDate, model.SeverityError, "A date is required", nil, nil))
	}
	if f.RequireTime && !timePresent(store, TimeKey(f.ID)) {
		findings = append(findings, v.finding(f, ruleRequireTime, model.SeverityError, "A time is required", nil, nil))
	}
	return findings
}

// timePresent reports whether a parseable time is stored at the key.
// Values loaded in bulk skip the commit-time normalization, so an
// unparseable time counts as absent here too; the serializer would drop
// it, and a silent drop of a required time must surface as a finding.
func timePresent(store *Store, k Key) bool {
	_, ok := normalizeTime(store.GetString(k))
	return ok
}

// selectedValues returns the currently selected option values of a
// single-select field, for either single-choice or multi-choice semantics.
func selectedValues(f *model.FieldSchema, store *Store) []string {
	raw := store.Get(ValueKey(f.ID))
	switch t := raw.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := coerceString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		if s := coerceString(raw); s != "" {
			return []string{s}
		}
		return nil
	}
}

// checkRequiredOptions flags every option marked required that is missing
// from the selection ("must select this to qualify").
func (v *Validator) checkRequiredOptions(f *model.FieldSchema, store *Store) []model.Finding {
	selected := selectedValues(f, store)
	var findings []model.Finding
	for _, opt := range f.Options {
		if !opt.Required {
			continue
		}
		found := false
		for _, s := range selected {
			if s == opt.Value {
				found = true
				break
			}
		}
		if !found {
			msg := fmt.Sprintf("Option %q must be selected", opt.Label)
			findings = append(findings, v.finding(f, ruleRequiredOptions, model.SeverityError, msg, nil, nil))
		}
	}
	return findings
}

// checkExclusiveOptions yields exactly one finding when any selected option
// is marked exclusive ("selecting this disqualifies the subject"),
// regardless of how many are selected.
func (v *Validator) checkExclusiveOptions(f *model.FieldSchema, store *Store) []model.Finding {
	selected := selectedValues(f, store)
	for _, opt := range f.Options {
		if !opt.Exclusive {
			continue
		}
		for _, s := range selected {
			if s == opt.Value {
				msg := fmt.Sprintf("Option %q excludes the subject", opt.Label)
				return []model.Finding{v.finding(f, ruleExclusiveOptions, model.SeverityError, msg, nil, nil)}
			}
		}
	}
	return nil
}

// checkRules runs the field's custom clinical rules. Multiplicity fields
// are checked once per measurement with that measurement's own value;
// other fields once with their representative scalar.
func (v *Validator) checkRules(f *model.FieldSchema, store *Store) []model.Finding {
	if len(f.ValidationRules) == 0 || !f.FieldType.IsNumeric() {
		return nil
	}

	var findings []model.Finding
	for r := range f.ValidationRules {
		rule := &f.ValidationRules[r]
		if !rule.IsActive {
			continue
		}

		if f.AllowMultiple {
			for i := 0; i < f.Measurements(); i++ {
				value, ok := v.evaluator.MeasurementScalar(f, store, i)
				if !ok {
					continue
				}
				if v.violated(rule, value, store) {
					idx := i
					findings = append(findings, v.finding(f, string(rule.Condition), rule.Severity, v.indexed(v.ruleMessage(rule), i), &value, &idx))
				}
			}
			continue
		}

		value, ok := v.evaluator.FieldValue(f, store)
		if !ok {
			continue
		}
		if v.violated(rule, value, store) {
			findings = append(findings, v.finding(f, string(rule.Condition), rule.Severity, v.ruleMessage(rule), &value, nil))
		}
	}
	return findings
}

// violated decides whether a value breaks a rule. A rule states the
// condition the value must satisfy, so the finding fires when the
// comparison does not hold. A formula rule whose threshold cannot be
// computed is inconclusive and never fires.
func (v *Validator) violated(rule *model.ActivityRule, value float64, store *Store) bool {
	switch rule.Condition {
	case model.RuleConditionMin:
		return rule.MinValue != nil && value < *rule.MinValue
	case model.RuleConditionMax:
		return rule.MaxValue != nil && value > *rule.MaxValue
	case model.RuleConditionRange:
		if rule.MinValue != nil && value < *rule.MinValue {
			return true
		}
		if rule.MaxValue != nil && value > *rule.MaxValue {
			return true
		}
		return false
	case model.RuleConditionEquals:
		return rule.Value != nil && value != *rule.Value
	case model.RuleConditionNotEquals:
		return rule.Value != nil && value == *rule.Value
	case model.RuleConditionFormula:
		threshold, ok := v.evaluator.Evaluate(rule.Formula, store)
		if !ok {
			return false
		}
		return !compare(value, rule.FormulaOperator, threshold)
	default:
		return false
	}
}

// compare applies a formula operator.
func compare(value float64, op model.FormulaOperator, threshold float64) bool {
	switch op {
	case model.OperatorGreater:
		return value > threshold
	case model.OperatorGreaterOrEqual:
		return value >= threshold
	case model.OperatorLess:
		return value < threshold
	case model.OperatorLessOrEqual:
		return value <= threshold
	case model.OperatorEqual:
		return value == threshold
	case model.OperatorNotEqual:
		return value != threshold
	default:
		return false
	}
}

// ruleMessage returns the rule's message, falling back to a generic one.
func (v *Validator) ruleMessage(rule *model.ActivityRule) string {
	if strings.TrimSpace(rule.Message) != "" {
		return rule.Message
	}
	return fmt.Sprintf("Value violates the %s rule", rule.Condition)
}

// indexed appends the human measurement number to a message.
func (v *Validator) indexed(msg string, index int) string {
	return fmt.Sprintf("%s (measurement %d)", msg, index+1)
}

func (v *Validator) finding(f *model.FieldSchema, rule string, severity model.Severity, msg string, value *float64, index *int) model.Finding {
	return model.Finding{
		FieldID:          f.ID,
		FieldName:        f.Name,
		Rule:             rule,
		Severity:         severity,
		Message:          msg,
		Value:            value,
		MeasurementIndex: index,
	}
}
