package engine

import (
	"strconv"
	"strings"

	"github.com/trialworks/formengine/pkg/model"
)

// Visible decides whether a field is currently shown. A field without a
// conditional config is always visible; otherwise it is visible exactly
// when the value stored for the field it depends on equals the configured
// show-when value. Hidden fields keep their stored values, so re-showing a
// field restores prior input.
func Visible(catalog *Catalog, store *Store, f *model.FieldSchema) bool {
	cond := f.ConditionalConfig
	if cond == nil {
		return true
	}

	current := store.Get(ValueKey(cond.DependsOn))

	// Boolean dependencies compare on the true/false coercion of both
	// sides; everything else is plain string equality.
	if dep := catalog.ByID(cond.DependsOn); dep != nil && dep.FieldType == model.FieldTypeBoolean {
		want, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(cond.ShowWhen)))
		if err != nil {
			return false
		}
		got, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(coerceString(current))))
		if err != nil {
			return false
		}
		return got == want
	}

	return coerceString(current) == cond.ShowWhen
}

// VisibleFields returns the catalog's fields that are currently visible,
// in schema-declared order.
func VisibleFields(catalog *Catalog, store *Store) []*model.FieldSchema {
	var out []*model.FieldSchema
	fields := catalog.Fields()
	for i := range fields {
		if Visible(catalog, store, &fields[i]) {
			out = append(out, &fields[i])
		}
	}
	return out
}
