package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trialworks/formengine/pkg/model"
)

func conditionalOn(f model.FieldSchema, dependsOn, showWhen string) model.FieldSchema {
	f.ConditionalConfig = &model.ConditionalConfig{DependsOn: dependsOn, ShowWhen: showWhen}
	return f
}

func TestVisible_NoConditionAlwaysVisible(t *testing.T) {
	f := numberField("peso", "Peso")
	catalog := NewCatalog([]model.FieldSchema{f})

	assert.True(t, Visible(catalog, NewStore(), catalog.ByID("peso")))
}

func TestVisible_StringEquality(t *testing.T) {
	fields := []model.FieldSchema{
		selectField("smoker", "Smoker", model.Option{Value: "yes", Label: "Yes"}, model.Option{Value: "no", Label: "No"}),
		conditionalOn(numberField("packs", "Packs per day"), "smoker", "yes"),
	}
	catalog := NewCatalog(fields)
	packs := catalog.ByID("packs")

	assert.False(t, Visible(catalog, NewStore(), packs), "hidden while dependency is unset")

	shown := NewStore().Set(ValueKey("smoker"), "yes")
	assert.True(t, Visible(catalog, shown, packs))

	hidden := NewStore().Set(ValueKey("smoker"), "no")
	assert.False(t, Visible(catalog, hidden, packs))
}

func TestVisible_BooleanCoercion(t *testing.T) {
	fields := []model.FieldSchema{
		{ID: "pregnant", Name: "Pregnant", FieldType: model.FieldTypeBoolean},
		conditionalOn(numberField("weeks", "Weeks"), "pregnant", "true"),
	}
	catalog := NewCatalog(fields)
	weeks := catalog.ByID("weeks")

	tests := []struct {
		name    string
		value   any
		visible bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"string true", "true", true},
		{"string True", "True", true},
		{"string false", "false", false},
		{"unset", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			if tt.value != nil {
				store = store.Set(ValueKey("pregnant"), tt.value)
			}
			assert.Equal(t, tt.visible, Visible(catalog, store, weeks))
		})
	}
}

func TestVisible_HiddenFieldKeepsStoredValue(t *testing.T) {
	fields := []model.FieldSchema{
		selectField("smoker", "Smoker", model.Option{Value: "yes", Label: "Yes"}, model.Option{Value: "no", Label: "No"}),
		conditionalOn(numberField("packs", "Packs per day"), "smoker", "yes"),
	}
	catalog := NewCatalog(fields)

	store := NewStore().
		Set(ValueKey("smoker"), "yes").
		Set(ValueKey("packs"), "2")

	// Hiding the field must not discard its value.
	store = store.Set(ValueKey("smoker"), "no")
	require.False(t, Visible(catalog, store, catalog.ByID("packs")))
	assert.Equal(t, "2", store.GetString(ValueKey("packs")))

	// Re-showing restores the prior input.
	store = store.Set(ValueKey("smoker"), "yes")
	require.True(t, Visible(catalog, store, catalog.ByID("packs")))
	assert.Equal(t, "2", store.GetString(ValueKey("packs")))
}

func TestVisibleFields_PreservesSchemaOrder(t *testing.T) {
	fields := []model.FieldSchema{
		numberField("a", "A"),
		conditionalOn(numberField("b", "B"), "a", "1"),
		numberField("c", "C"),
	}
	catalog := NewCatalog(fields)

	visible := VisibleFields(catalog, NewStore())
	require.Len(t, visible, 2)
	assert.Equal(t, "a", visible[0].ID)
	assert.Equal(t, "c", visible[1].ID)

	visible = VisibleFields(catalog, NewStore().Set(ValueKey("a"), "1"))
	require.Len(t, visible, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{visible[0].ID, visible[1].ID, visible[2].ID})
}
