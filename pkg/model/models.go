package model

import "time"

// FieldType identifies the kind of input a field collects.
type FieldType string

const (
	FieldTypeShortText      FieldType = "short-text"
	FieldTypeLongText       FieldType = "long-text"
	FieldTypeSimpleNumber   FieldType = "simple-number"
	FieldTypeCompoundNumber FieldType = "compound-number"
	FieldTypeSingleSelect   FieldType = "single-select"
	FieldTypeBoolean        FieldType = "boolean"
	FieldTypeDateTime       FieldType = "date-time"
	FieldTypeFile           FieldType = "file"
	FieldTypeCalculated     FieldType = "calculated"
)

// IsNumeric reports whether values of this type can feed formulas and
// numeric validation rules. Calculated fields are deliberately excluded
// so a formula can never reference another derivation.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeSimpleNumber || t == FieldTypeCompoundNumber
}

// RuleCondition identifies how a validation rule compares a field's value.
type RuleCondition string

const (
	RuleConditionMin       RuleCondition = "min"
	RuleConditionMax       RuleCondition = "max"
	RuleConditionRange     RuleCondition = "range"
	RuleConditionEquals    RuleCondition = "equals"
	RuleConditionNotEquals RuleCondition = "not-equals"
	RuleConditionFormula   RuleCondition = "formula"
)

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FormulaOperator compares a field's value against a formula-derived threshold.
type FormulaOperator string

const (
	OperatorGreater        FormulaOperator = ">"
	OperatorGreaterOrEqual FormulaOperator = ">="
	OperatorLess           FormulaOperator = "<"
	OperatorLessOrEqual    FormulaOperator = "<="
	OperatorEqual          FormulaOperator = "=="
	OperatorNotEqual       FormulaOperator = "!="
)

// ActivityRule is one clinical validation rule attached to a field.
type ActivityRule struct {
	Condition       RuleCondition   `json:"condition"`
	MinValue        *float64        `json:"minValue,omitempty"`
	MaxValue        *float64        `json:"maxValue,omitempty"`
	Value           *float64        `json:"value,omitempty"`
	Formula         string          `json:"formula,omitempty"`
	FormulaOperator FormulaOperator `json:"formulaOperator,omitempty"`
	Severity        Severity        `json:"severity"`
	Message         string          `json:"message"`
	IsActive        bool            `json:"isActive"`
}

// Option is one selectable choice of a single-select field. Required and
// Exclusive are mutually exclusive flags: a required option must be among
// the selection, an exclusive option disqualifies the subject when selected.
type Option struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
	Exclusive bool   `json:"exclusive"`
}

// CompoundField is one named numeric sub-value of a compound-number field.
type CompoundField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
}

// CompoundConfig lists the sub-values composing a compound-number field,
// e.g. systolic/diastolic.
type CompoundConfig struct {
	Fields []CompoundField `json:"fields"`
}

// ConditionalConfig makes a field's visibility depend on another field's value.
type ConditionalConfig struct {
	DependsOn string `json:"dependsOn"`
	ShowWhen  string `json:"showWhen"`
}

// FieldSchema is the author-time description of one form field ("activity").
// It is immutable for the duration of a visit-filling session.
type FieldSchema struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FieldType   FieldType `json:"fieldType"`
	HelpText    string    `json:"helpText,omitempty"`
	Description string    `json:"description,omitempty"`
	Unit        string    `json:"measurementUnit,omitempty"`

	Required      bool `json:"required"`
	AllowMultiple bool `json:"allowMultiple"`
	RepeatCount   int  `json:"repeatCount,omitempty"`

	RequireDate               bool  `json:"requireDate"`
	RequireTime               bool  `json:"requireTime"`
	RequireDatePerMeasurement *bool `json:"requireDatePerMeasurement,omitempty"`
	RequireTimePerMeasurement *bool `json:"requireTimePerMeasurement,omitempty"`
	TimeIntervalMinutes       *int  `json:"timeIntervalMinutes,omitempty"`

	DatetimeIncludeDate *bool `json:"datetimeIncludeDate,omitempty"`
	DatetimeIncludeTime *bool `json:"datetimeIncludeTime,omitempty"`

	Options        []Option `json:"options,omitempty"`
	SelectMultiple bool     `json:"selectMultiple"`

	CompoundConfig *CompoundConfig `json:"compoundConfig,omitempty"`

	CalculationFormula string `json:"calculationFormula,omitempty"`
	DecimalPlaces      *int   `json:"decimalPlaces,omitempty"`

	ConditionalConfig *ConditionalConfig `json:"conditionalConfig,omitempty"`
	ValidationRules   []ActivityRule     `json:"validationRules,omitempty"`
}

// Measurements returns the number of independent measurements the field
// collects. A field without multiplicity collects exactly one.
func (f *FieldSchema) Measurements() int {
	if !f.AllowMultiple || f.RepeatCount < 1 {
		return 1
	}
	return f.RepeatCount
}

// DatePerMeasurement reports whether each measurement captures its own date.
// The input contract defaults to per-measurement when the flag is absent.
func (f *FieldSchema) DatePerMeasurement() bool {
	return f.RequireDatePerMeasurement == nil || *f.RequireDatePerMeasurement
}

// TimePerMeasurement reports whether each measurement captures its own time.
func (f *FieldSchema) TimePerMeasurement() bool {
	return f.RequireTimePerMeasurement == nil || *f.RequireTimePerMeasurement
}

// IncludesDate reports whether a date-time field captures a date component.
func (f *FieldSchema) IncludesDate() bool {
	return f.DatetimeIncludeDate == nil || *f.DatetimeIncludeDate
}

// IncludesTime reports whether a date-time field captures a time component.
func (f *FieldSchema) IncludesTime() bool {
	return f.DatetimeIncludeTime == nil || *f.DatetimeIncludeTime
}

// Finding is the result of one validation rule against one field or
// measurement. Findings are data, never errors: warnings are informational,
// error-severity findings block submission.
type Finding struct {
	FieldID          string   `json:"fieldId"`
	FieldName        string   `json:"fieldName"`
	Rule             string   `json:"rule"`
	Severity         Severity `json:"severity"`
	Message          string   `json:"message"`
	Value            *float64 `json:"value,omitempty"`
	MeasurementIndex *int     `json:"measurementIndex,omitempty"`
}

// IsBlocking reports whether this finding prevents submission.
func (f Finding) IsBlocking() bool {
	return f.Severity == SeverityError
}

// MeasurementRecord is one serialized measurement of a multiplicity field.
// Value is a formatted string for scalar fields and a record of named
// sub-values for compound fields.
type MeasurementRecord struct {
	Value any    `json:"value,omitempty"`
	Date  string `json:"date,omitempty"`
	Time  string `json:"time,omitempty"`
}

// ActivityRecord is one serialized activity of the output record.
type ActivityRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	FieldType    FieldType           `json:"fieldType"`
	HelpText     string              `json:"helpText,omitempty"`
	Description  string              `json:"description,omitempty"`
	Unit         string              `json:"measurementUnit,omitempty"`
	Value        any                 `json:"value,omitempty"`
	Measurements []MeasurementRecord `json:"measurements,omitempty"`
}

// VisitInfo identifies the visit instance a record belongs to.
type VisitInfo struct {
	PatientID    string `json:"patientId,omitempty"`
	ProtocolName string `json:"protocolName,omitempty"`
	VisitName    string `json:"visitName"`
	VisitType    string `json:"visitType,omitempty"`
}

// VisitRecord is the canonical output record of a completed, validated form.
// It is plain JSON-serializable data; no engine state leaks into it.
type VisitRecord struct {
	PatientID        string           `json:"patientId,omitempty"`
	ProtocolName     string           `json:"protocolName,omitempty"`
	VisitName        string           `json:"visitName"`
	VisitType        string           `json:"visitType,omitempty"`
	Activities       []ActivityRecord `json:"activities"`
	ValidationErrors []Finding        `json:"validationErrors"`
	Timestamp        time.Time        `json:"timestamp"`
}
