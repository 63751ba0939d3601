package engine

import (
	"strings"

	"github.com/trialworks/formengine/pkg/model"
)

// Catalog is an immutable index over a visit's ordered field list. It is
// built once per visit-filling session from the field-authoring input
// contract and never mutated afterwards.
type Catalog struct {
	fields []model.FieldSchema
	byID   map[string]*model.FieldSchema
	byName map[string]*model.FieldSchema
}

// NewCatalog indexes the given fields. Field order is preserved; it drives
// serialization order and the calculated-field recompute pass.
func NewCatalog(fields []model.FieldSchema) *Catalog {
	c := &Catalog{
		fields: fields,
		byID:   make(map[string]*model.FieldSchema, len(fields)),
		byName: make(map[string]*model.FieldSchema, len(fields)),
	}
	for i := range c.fields {
		f := &c.fields[i]
		c.byID[f.ID] = f
		c.byName[normalizeName(f.Name)] = f
	}
	return c
}

// normalizeName is the canonical form under which fields are addressable by
// name: trimmed and lower-cased.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Fields returns all fields in schema-declared order.
func (c *Catalog) Fields() []model.FieldSchema {
	return c.fields
}

// Len returns the number of fields in the catalog.
func (c *Catalog) Len() int {
	return len(c.fields)
}

// ByID looks a field up by its stable identifier.
func (c *Catalog) ByID(id string) *model.FieldSchema {
	return c.byID[id]
}

// ByName looks a field up by its human label, case-insensitively and
// ignoring surrounding whitespace. Formulas reference fields this way.
func (c *Catalog) ByName(name string) *model.FieldSchema {
	return c.byName[normalizeName(name)]
}

// NumericFields returns the fields whose values are legal formula inputs:
// simple-number and compound-number. Calculated fields are excluded so a
// derivation can never feed another derivation.
func (c *Catalog) NumericFields() []*model.FieldSchema {
	var out []*model.FieldSchema
	for i := range c.fields {
		if c.fields[i].FieldType.IsNumeric() {
			out = append(out, &c.fields[i])
		}
	}
	return out
}

// CalculatedFields returns the calculated fields in schema order.
func (c *Catalog) CalculatedFields() []*model.FieldSchema {
	var out []*model.FieldSchema
	for i := range c.fields {
		if c.fields[i].FieldType == model.FieldTypeCalculated {
			out = append(out, &c.fields[i])
		}
	}
	return out
}
