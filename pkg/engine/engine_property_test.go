package engine

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/trialworks/formengine/pkg/model"
)

func TestProperty_ValidationIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Identical stores always produce identical findings", prop.ForAll(
		func(value float64, min float64, max float64) bool {
			f := numberField("peso", "Peso")
			f.Required = true
			f.ValidationRules = []model.ActivityRule{{
				Condition: model.RuleConditionRange,
				MinValue:  &min,
				MaxValue:  &max,
				Severity:  model.SeverityError,
				Message:   "out of range",
				IsActive:  true,
			}}
			v, _ := newValidator([]model.FieldSchema{f})

			store := NewStore().Set(ValueKey("peso"), strconv.FormatFloat(value, 'f', -1, 64))
			first := v.Validate(store)
			second := v.Validate(store)

			return reflect.DeepEqual(first, second)
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 0),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_RangeRuleFiresExactlyOutsideBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("A range finding exists iff the value lies outside [min, max]", prop.ForAll(
		func(value int, min int, max int) bool {
			if min > max {
				min, max = max, min
			}
			lo, hi := float64(min), float64(max)

			f := numberField("peso", "Peso")
			f.ValidationRules = []model.ActivityRule{{
				Condition: model.RuleConditionRange,
				MinValue:  &lo,
				MaxValue:  &hi,
				Severity:  model.SeverityError,
				Message:   "out of range",
				IsActive:  true,
			}}
			v, _ := newValidator([]model.FieldSchema{f})

			store := NewStore().Set(ValueKey("peso"), strconv.Itoa(value))
			findings := v.Validate(store)

			outside := value < min || value > max
			if outside {
				return len(findings) == 1 && findings[0].Severity == model.SeverityError
			}
			return len(findings) == 0
		},
		gen.IntRange(-500, 500),
		gen.IntRange(-500, 500),
		gen.IntRange(-500, 500),
	))

	properties.TestingRun(t)
}

func TestProperty_FormulaCaseIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Evaluation is unaffected by the case of field names in the formula", prop.ForAll(
		func(value int, upper bool) bool {
			catalog := NewCatalog([]model.FieldSchema{numberField("peso", "Peso Total")})
			e := NewEvaluator(catalog)
			store := NewStore().Set(ValueKey("peso"), strconv.Itoa(value))

			formula := "peso total * 2"
			if upper {
				formula = strings.ToUpper(formula)
			}

			got, ok := e.Evaluate(formula, store)
			return ok && got == float64(value*2)
		},
		gen.IntRange(-10000, 10000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_IntervalTimesAlwaysDerived(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Every derived time equals t0 plus i times the interval, wrapped at midnight", prop.ForAll(
		func(hour int, minute int, interval int, repeat int) bool {
			f := repeatedNumberField("bp", "Pressure", repeat)
			f.RequireTime = true
			f.TimeIntervalMinutes = &interval

			t0 := fmt.Sprintf("%02d:%02d", hour, minute)
			store := NewStore().SetField(&f, MeasurementTimeKey("bp", 0), t0)

			for i := 1; i < repeat; i++ {
				total := (hour*60 + minute + i*interval) % (24 * 60)
				want := fmt.Sprintf("%02d:%02d", total/60, total%60)
				if store.GetString(MeasurementTimeKey("bp", i)) != want {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 23),
		gen.IntRange(0, 59),
		gen.IntRange(1, 240),
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}

func TestProperty_SerializedNumbersRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("A serialized numeric value parses back within the precision's tolerance", prop.ForAll(
		func(value float64, decimals int) bool {
			f := numberField("peso", "Peso")
			f.DecimalPlaces = &decimals
			s := newSerializer([]model.FieldSchema{f})

			store := NewStore().Set(ValueKey("peso"), strconv.FormatFloat(value, 'f', -1, 64))
			record, _, err := s.Serialize(store, model.VisitInfo{})
			if err != nil {
				return false
			}

			rendered, ok := record.Activities[0].Value.(string)
			if !ok {
				return false
			}
			parsed, err := strconv.ParseFloat(rendered, 64)
			if err != nil {
				return false
			}

			tolerance := 0.5
			for i := 0; i < decimals; i++ {
				tolerance /= 10
			}
			diff := parsed - value
			if diff < 0 {
				diff = -diff
			}
			return diff <= tolerance
		},
		gen.Float64Range(-100000, 100000),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

func TestProperty_CopyOnWriteNeverMutatesSnapshots(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Writing through a snapshot leaves every earlier snapshot intact", prop.ForAll(
		func(values []int) bool {
			snapshots := []*Store{NewStore()}
			for i, v := range values {
				key := MeasurementKey("bp", i)
				next := snapshots[len(snapshots)-1].Set(key, strconv.Itoa(v))
				snapshots = append(snapshots, next)
			}

			// Snapshot i must contain exactly the first i writes.
			for i, snap := range snapshots {
				for j, v := range values {
					got := snap.GetString(MeasurementKey("bp", j))
					if j < i && got != strconv.Itoa(v) {
						return false
					}
					if j >= i && got != "" {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(0, 999)),
	))

	properties.TestingRun(t)
}
