package engine

import (
	"github.com/trialworks/formengine/pkg/model"
)

// Shared field builders for engine tests.

func numberField(id, name string) model.FieldSchema {
	return model.FieldSchema{
		ID:        id,
		Name:      name,
		FieldType: model.FieldTypeSimpleNumber,
	}
}

func repeatedNumberField(id, name string, repeat int) model.FieldSchema {
	f := numberField(id, name)
	f.AllowMultiple = true
	f.RepeatCount = repeat
	return f
}

func calculatedField(id, name, formula string) model.FieldSchema {
	return model.FieldSchema{
		ID:                 id,
		Name:               name,
		FieldType:          model.FieldTypeCalculated,
		CalculationFormula: formula,
	}
}

func selectField(id, name string, options ...model.Option) model.FieldSchema {
	return model.FieldSchema{
		ID:        id,
		Name:      name,
		FieldType: model.FieldTypeSingleSelect,
		Options:   options,
	}
}

func intPtr(i int) *int {
	return &i
}

func floatPtr(f float64) *float64 {
	return &f
}

func boolPtr(b bool) *bool {
	return &b
}
