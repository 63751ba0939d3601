package engine

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/trialworks/formengine/pkg/model"
)

// safeExpression gates the substituted formula before parsing: only digits,
// whitespace, the four arithmetic operators, dots and parentheses may
// remain. Anything else means an unresolved variable or a hostile input.
var safeExpression = regexp.MustCompile(`^[0-9\s+\-*/.()]+$`)

// Evaluator resolves arithmetic formulas that reference fields by name
// against a value store snapshot. Evaluation is pure: failure (missing
// variable, unsafe expression, non-finite result) is a first-class result,
// never a fault, because partially filled forms are the normal case.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator creates an Evaluator over the given catalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate computes the formula against the store. The boolean result is
// false when the formula cannot be computed.
func (e *Evaluator) Evaluate(formula string, store *Store) (float64, bool) {
	if strings.TrimSpace(formula) == "" {
		return 0, false
	}
	substituted := e.substitute(formula, store)
	if !safeExpression.MatchString(substituted) {
		return 0, false
	}
	return evalArithmetic(substituted)
}

// FieldValue returns the representative scalar for a numeric field: the
// arithmetic mean of its present measurements when multiplicity is on,
// otherwise the value itself. Compound fields contribute the mean of their
// numeric sub-values. The boolean result is false when no usable numeric
// value exists.
func (e *Evaluator) FieldValue(f *model.FieldSchema, store *Store) (float64, bool) {
	if !f.FieldType.IsNumeric() {
		return 0, false
	}
	if !f.AllowMultiple {
		return measurementScalar(f, store.MeasurementValue(f, 0))
	}

	var sum float64
	var count int
	for i := 0; i < f.Measurements(); i++ {
		if v, ok := measurementScalar(f, store.MeasurementValue(f, i)); ok {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// MeasurementScalar returns the numeric value of one specific measurement,
// used when validating per-index rules.
func (e *Evaluator) MeasurementScalar(f *model.FieldSchema, store *Store, index int) (float64, bool) {
	return measurementScalar(f, store.MeasurementValue(f, index))
}

// measurementScalar reduces one measurement's raw value to a number. A
// compound measurement is a record of named sub-values; its scalar is the
// mean of the parseable ones.
func measurementScalar(f *model.FieldSchema, raw any) (float64, bool) {
	if f.FieldType == model.FieldTypeCompoundNumber {
		record, ok := raw.(map[string]any)
		if !ok {
			return 0, false
		}
		var sum float64
		var count int
		for _, sub := range record {
			if v, ok := parseNumber(coerceString(sub)); ok {
				sum += v
				count++
			}
		}
		if count == 0 {
			return 0, false
		}
		return sum / float64(count), true
	}
	return parseNumber(coerceString(raw))
}

// parseNumber parses a user-entered numeric string.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type variable struct {
	name  string
	value float64
}

// substitute replaces every resolvable field name in the formula with its
// numeric value. Each field registers two spellings: its name lower-cased
// and trimmed, and the same with internal whitespace removed, so "Peso
// Total" resolves whether the formula reads "peso total" or "pesototal".
// Longer names are substituted first so "peso" never partially eats
// "peso total"; matching is case-insensitive and whole-word.
func (e *Evaluator) substitute(formula string, store *Store) string {
	var vars []variable
	for _, f := range e.catalog.NumericFields() {
		value, ok := e.FieldValue(f, store)
		if !ok {
			continue
		}
		name := normalizeName(f.Name)
		if name == "" {
			continue
		}
		vars = append(vars, variable{name: name, value: value})
		collapsed := strings.Join(strings.Fields(name), "")
		if collapsed != name {
			vars = append(vars, variable{name: collapsed, value: value})
		}
	}

	sort.SliceStable(vars, func(i, j int) bool {
		return len(vars[i].name) > len(vars[j].name)
	})

	out := formula
	for _, v := range vars {
		pattern, err := regexp.Compile(namePattern(v.name))
		if err != nil {
			continue
		}
		out = pattern.ReplaceAllString(out, strconv.FormatFloat(v.value, 'f', -1, 64))
	}
	return out
}

// namePattern builds the case-insensitive whole-word pattern for one
// variable name. A \b anchor only matches next to a word character, so it
// is added only where the name actually starts or ends with one; a name
// like "peso (kg)" would otherwise never match.
func namePattern(name string) string {
	p := `(?i)`
	if wordChar(name[0]) {
		p += `\b`
	}
	p += regexp.QuoteMeta(name)
	if wordChar(name[len(name)-1]) {
		p += `\b`
	}
	return p
}

func wordChar(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
