// Package settings manages per-company payment automation settings.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/currency"

	"github.com/resilient-tech/payments-processor/internal/payments"
	"github.com/resilient-tech/payments-processor/internal/schedule"
)

// ErrInvalidSetting marks validation failures.
var ErrInvalidSetting = errors.New("invalid automation setting")

// ValidationError lists field level problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSetting, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSetting
}

// DefaultsLookup resolves company defaults used by validation.
type DefaultsLookup interface {
	CompanyDefaults(ctx context.Context, company string) (payments.CompanyDefaults, error)
}

// Service validates and persists settings.
type Service struct {
	repo     Repository
	defaults DefaultsLookup
	validate *validator.Validate
}

// NewService builds a Service.
func NewService(repo Repository, defaults DefaultsLookup) *Service {
	return &Service{repo: repo, defaults: defaults, validate: validator.New()}
}

// Get returns the setting of a company.
func (s *Service) Get(ctx context.Context, company string) (payments.Setting, error) {
	return s.repo.Get(ctx, company)
}

// List returns every stored setting.
func (s *Service) List(ctx context.Context) ([]payments.Setting, error) {
	return s.repo.List(ctx)
}

// Save normalizes, validates and stores a setting.
func (s *Service) Save(ctx context.Context, setting payments.Setting) (payments.Setting, error) {
	setting.Normalize()
	if err := s.Validate(ctx, setting); err != nil {
		return payments.Setting{}, err
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return payments.Setting{}, err
	}
	return setting, nil
}

// Validate checks a setting against struct rules and company defaults.
func (s *Service) Validate(ctx context.Context, setting payments.Setting) error {
	fields := make(map[string]string)
	if err := s.validate.Struct(setting); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
	}
	if setting.AutoGenerateEntries && !setting.Weekdays.Any() {
		fields["Weekdays"] = "select at least one automation weekday"
	}
	if setting.AutoGenerateThreshold.IsNegative() {
		fields["AutoGenerateThreshold"] = "must not be negative"
	}
	if setting.AutoSubmitThreshold.IsNegative() {
		fields["AutoSubmitThreshold"] = "must not be negative"
	}

	if setting.Company != "" && s.defaults != nil {
		defaults, err := s.defaults.CompanyDefaults(ctx, setting.Company)
		if err != nil {
			return fmt.Errorf("settings: company defaults: %w", err)
		}
		if _, err := currency.ParseISO(defaults.Currency); err != nil {
			fields["Company"] = fmt.Sprintf("default currency %q is not an ISO 4217 code", defaults.Currency)
		}
		if setting.ClaimEarlyPaymentDiscount && defaults.DiscountAccount == "" {
			fields["ClaimEarlyPaymentDiscount"] = payments.ErrDiscountAccountMissing.Error()
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Due returns the enabled settings that should run on today: auto generation
// on, today is an automation weekday and the setting has not run today.
func (s *Service) Due(ctx context.Context, today time.Time) ([]payments.Setting, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	day := schedule.Day(today)
	out := make([]payments.Setting, 0, len(all))
	for _, setting := range all {
		if setting.Disabled || !setting.AutoGenerateEntries || !setting.Weekdays.Enabled(day) {
			continue
		}
		if setting.LastExecution != nil && !schedule.Day(*setting.LastExecution).Before(day) {
			continue
		}
		out = append(out, setting)
	}
	return out, nil
}

// MarkExecuted records today as the last execution. It reports false when the
// setting already ran today.
func (s *Service) MarkExecuted(ctx context.Context, company string, today time.Time) (bool, error) {
	return s.repo.MarkExecuted(ctx, company, schedule.Day(today))
}
