package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SettingSource loads the automation setting of a company.
type SettingSource interface {
	Get(ctx context.Context, company string) (Setting, error)
}

// Service exposes preview and run operations over the engine.
type Service struct {
	engine   *Engine
	settings SettingSource
}

// NewService builds a Service.
func NewService(engine *Engine, settings SettingSource) *Service {
	return &Service{engine: engine, settings: settings}
}

// Preview classifies the company's due invoices without constructing anything.
// A non-nil paymentDate replaces the next run date.
func (s *Service) Preview(ctx context.Context, company string, paymentDate *time.Time) (*RunContext, error) {
	setting, err := s.load(ctx, company)
	if err != nil {
		return nil, err
	}
	return s.engine.Classify(ctx, setting, RunOptions{PaymentDate: paymentDate})
}

// Run executes a full run for the company, constructing instructions.
func (s *Service) Run(ctx context.Context, company string) (*RunContext, error) {
	setting, err := s.load(ctx, company)
	if err != nil {
		return nil, err
	}
	return s.RunSetting(ctx, setting)
}

// RunSetting executes a full run for an already loaded setting.
func (s *Service) RunSetting(ctx context.Context, setting Setting) (*RunContext, error) {
	if setting.Disabled {
		return nil, fmt.Errorf("%w: %s", ErrSettingDisabled, setting.Company)
	}
	return s.engine.Execute(ctx, setting)
}

func (s *Service) load(ctx context.Context, company string) (Setting, error) {
	if company == "" {
		return Setting{}, &ConfigError{Err: ErrCompanyRequired}
	}
	setting, err := s.settings.Get(ctx, company)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return Setting{}, err
		}
		return Setting{}, fmt.Errorf("payments: load setting %s: %w", company, err)
	}
	return setting, nil
}
