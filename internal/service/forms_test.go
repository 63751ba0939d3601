package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trialworks/formengine/internal/repository"
	"github.com/trialworks/formengine/pkg/model"
	"go.uber.org/zap"
)

func newTestService() *FormService {
	logger := zap.NewNop()
	repo := repository.NewProtocolRepository(logger)
	return NewFormService(repo, Limits{MaxFields: 50, MaxRepeatCount: 10}, logger)
}

func bmiProtocolFields() []model.FieldSchema {
	return []model.FieldSchema{
		{ID: "peso", Name: "Peso", FieldType: model.FieldTypeSimpleNumber, Required: true},
		{ID: "altura", Name: "Altura", FieldType: model.FieldTypeSimpleNumber},
		{ID: "imc", Name: "IMC", FieldType: model.FieldTypeCalculated, CalculationFormula: "peso / (altura*altura)"},
	}
}

func TestRegisterProtocol(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	id, err := s.RegisterProtocol(ctx, "Hypertension Study", bmiProtocolFields())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := s.GetProtocol(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hypertension Study", p.Name)
	assert.Len(t, p.Fields, 3)
}

func TestRegisterProtocol_SchemaChecks(t *testing.T) {
	tests := []struct {
		name    string
		fields  []model.FieldSchema
		wantErr string
	}{
		{
			name:    "empty field list",
			fields:  nil,
			wantErr: "at least one field is required",
		},
		{
			name: "missing field id",
			fields: []model.FieldSchema{
				{Name: "Peso", FieldType: model.FieldTypeSimpleNumber},
			},
			wantErr: "has no id",
		},
		{
			name: "duplicate field id",
			fields: []model.FieldSchema{
				{ID: "peso", Name: "Peso", FieldType: model.FieldTypeSimpleNumber},
				{ID: "peso", Name: "Peso 2", FieldType: model.FieldTypeSimpleNumber},
			},
			wantErr: "duplicate field id",
		},
		{
			name: "calculated field without formula",
			fields: []model.FieldSchema{
				{ID: "imc", Name: "IMC", FieldType: model.FieldTypeCalculated},
			},
			wantErr: "has no formula",
		},
		{
			name: "repeat count over limit",
			fields: []model.FieldSchema{
				{ID: "bp", Name: "Pressure", FieldType: model.FieldTypeSimpleNumber, AllowMultiple: true, RepeatCount: 11},
			},
			wantErr: "exceeds limit",
		},
		{
			name: "option both required and exclusive",
			fields: []model.FieldSchema{
				{ID: "consent", Name: "Consent", FieldType: model.FieldTypeSingleSelect, Options: []model.Option{
					{Value: "x", Label: "X", Required: true, Exclusive: true},
				}},
			},
			wantErr: "both required and exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService()
			_, err := s.RegisterProtocol(context.Background(), "p", tt.fields)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetProtocol_NotFound(t *testing.T) {
	s := newTestService()
	_, err := s.GetProtocol(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrProtocolNotFound)
}

func TestEvaluate(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id, err := s.RegisterProtocol(ctx, "Hypertension Study", bmiProtocolFields())
	require.NoError(t, err)

	result, err := s.Evaluate(ctx, id, map[string]any{
		"peso":   "80",
		"altura": "2",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"peso", "altura", "imc"}, result.VisibleFields)
	assert.Equal(t, map[string]string{"imc": "20"}, result.CalculatedValues)
	assert.Empty(t, result.Findings)
}

func TestEvaluate_ReportsFindings(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id, err := s.RegisterProtocol(ctx, "Hypertension Study", bmiProtocolFields())
	require.NoError(t, err)

	result, err := s.Evaluate(ctx, id, map[string]any{})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "peso", result.Findings[0].FieldID)
	assert.Equal(t, "required", result.Findings[0].Rule)
}

func TestEvaluate_UnknownProtocol(t *testing.T) {
	s := newTestService()
	_, err := s.Evaluate(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrProtocolNotFound)
}

func TestSubmit(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id, err := s.RegisterProtocol(ctx, "Hypertension Study", bmiProtocolFields())
	require.NoError(t, err)

	record, findings, err := s.Submit(ctx, id, map[string]any{
		"peso":   "80",
		"altura": "2",
	}, model.VisitInfo{
		PatientID: "p-1",
		VisitName: "baseline",
	})
	require.NoError(t, err)
	assert.Empty(t, findings)

	assert.Equal(t, "Hypertension Study", record.ProtocolName, "protocol name filled from the registry")
	require.Len(t, record.Activities, 3)
	assert.Equal(t, "20", record.Activities[2].Value)
}

func TestSubmit_BlockedByValidation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id, err := s.RegisterProtocol(ctx, "Hypertension Study", bmiProtocolFields())
	require.NoError(t, err)

	record, findings, err := s.Submit(ctx, id, map[string]any{}, model.VisitInfo{VisitName: "baseline"})
	require.ErrorIs(t, err, ErrValidationBlocked)
	assert.Nil(t, record)
	require.Len(t, findings, 1)
	assert.Equal(t, "required", findings[0].Rule)
}

func TestSubmit_ExplicitProtocolNameKept(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id, err := s.RegisterProtocol(ctx, "Hypertension Study", bmiProtocolFields())
	require.NoError(t, err)

	record, _, err := s.Submit(ctx, id, map[string]any{"peso": "80"}, model.VisitInfo{
		ProtocolName: "Override Name",
		VisitName:    "baseline",
	})
	require.NoError(t, err)
	assert.Equal(t, "Override Name", record.ProtocolName)
}
