package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/trialworks/formengine/internal/repository"
	"github.com/trialworks/formengine/pkg/engine"
	"github.com/trialworks/formengine/pkg/model"
	"go.uber.org/zap"
)

// ErrValidationBlocked mirrors the engine's refusal to serialize while
// blocking findings exist, so handlers can map it to a status code.
var ErrValidationBlocked = engine.ErrValidationBlocked

// EvaluationResult is the live view returned for an in-progress form: what
// is visible, the current derivations, and the full validation findings.
type EvaluationResult struct {
	VisibleFields    []string          `json:"visibleFields"`
	CalculatedValues map[string]string `json:"calculatedValues"`
	Findings         []model.Finding   `json:"findings"`
}

// FormService handles form evaluation and submission business logic
type FormService struct {
	repo   *repository.ProtocolRepository
	limits Limits
	logger *zap.Logger
}

// Limits bounds the schemas the service accepts.
type Limits struct {
	MaxFields      int
	MaxRepeatCount int
}

// NewFormService creates a new FormService
func NewFormService(repo *repository.ProtocolRepository, limits Limits, logger *zap.Logger) *FormService {
	return &FormService{
		repo:   repo,
		limits: limits,
		logger: logger,
	}
}

// RegisterProtocol validates and stores a visit form definition, returning
// its id.
func (s *FormService) RegisterProtocol(ctx context.Context, name string, fields []model.FieldSchema) (string, error) {
	if err := s.checkSchema(fields); err != nil {
		return "", err
	}

	p := &repository.Protocol{Name: name, Fields: fields}
	if err := s.repo.Save(ctx, p); err != nil {
		s.logger.Error("failed to register protocol",
			zap.Error(err),
			zap.String("name", name),
		)
		return "", fmt.Errorf("failed to register protocol: %w", err)
	}
	return p.ID, nil
}

// GetProtocol retrieves a registered form definition.
func (s *FormService) GetProtocol(ctx context.Context, id string) (*repository.Protocol, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol: %w", err)
	}
	return p, nil
}

// Evaluate runs the engine over the given values without submitting:
// visibility, derivations and the full validation pipeline, as the preview
// surface shows them in live mode.
func (s *FormService) Evaluate(ctx context.Context, protocolID string, values map[string]any) (*EvaluationResult, error) {
	p, err := s.repo.Get(ctx, protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate form: %w", err)
	}

	session := engine.NewSession(p.Fields, s.logger)
	session.LoadValues(values)

	result := &EvaluationResult{
		VisibleFields:    session.VisibleFieldIDs(),
		CalculatedValues: session.CalculatedValues(),
		Findings:         session.Validate(),
	}

	s.logger.Info("form evaluated",
		zap.String("protocol_id", protocolID),
		zap.Int("visible_fields", len(result.VisibleFields)),
		zap.Int("findings", len(result.Findings)),
	)
	return result, nil
}

// Submit validates the entered values and, when nothing blocks, produces
// the canonical visit record. Blocking findings are returned alongside
// ErrValidationBlocked.
func (s *FormService) Submit(ctx context.Context, protocolID string, values map[string]any, visit model.VisitInfo) (*model.VisitRecord, []model.Finding, error) {
	p, err := s.repo.Get(ctx, protocolID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to submit form: %w", err)
	}

	if visit.ProtocolName == "" {
		visit.ProtocolName = p.Name
	}

	session := engine.NewSession(p.Fields, s.logger)
	session.LoadValues(values)

	record, findings, err := session.Submit(visit)
	if err != nil {
		if errors.Is(err, engine.ErrValidationBlocked) {
			s.logger.Info("form submission blocked",
				zap.String("protocol_id", protocolID),
				zap.Int("findings", len(findings)),
			)
			return nil, findings, err
		}
		s.logger.Error("form submission failed",
			zap.Error(err),
			zap.String("protocol_id", protocolID),
		)
		return nil, nil, fmt.Errorf("failed to submit form: %w", err)
	}

	s.logger.Info("form submitted",
		zap.String("protocol_id", protocolID),
		zap.String("visit", visit.VisitName),
		zap.Int("activities", len(record.Activities)),
	)
	return record, findings, nil
}

// checkSchema enforces the service-boundary limits on a field list.
func (s *FormService) checkSchema(fields []model.FieldSchema) error {
	if len(fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	if s.limits.MaxFields > 0 && len(fields) > s.limits.MaxFields {
		return fmt.Errorf("too many fields: %d exceeds limit %d", len(fields), s.limits.MaxFields)
	}

	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.ID == "" {
			return fmt.Errorf("field %d has no id", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate field id: %s", f.ID)
		}
		seen[f.ID] = true

		if s.limits.MaxRepeatCount > 0 && f.RepeatCount > s.limits.MaxRepeatCount {
			return fmt.Errorf("field %s repeat count %d exceeds limit %d", f.ID, f.RepeatCount, s.limits.MaxRepeatCount)
		}
		if f.FieldType == model.FieldTypeCalculated && f.CalculationFormula == "" {
			return fmt.Errorf("calculated field %s has no formula", f.ID)
		}
		for _, opt := range f.Options {
			if opt.Required && opt.Exclusive {
				return fmt.Errorf("field %s option %q is both required and exclusive", f.ID, opt.Value)
			}
		}
	}
	return nil
}
