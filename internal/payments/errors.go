package payments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCompanyRequired        = errors.New("company is required")
	ErrDiscountAccountMissing = errors.New("default payment discount account is not set for company")
	ErrSettingNotFound        = errors.New("automation setting not found")
	ErrSettingDisabled        = errors.New("automation setting is disabled")
)

// ConfigError aborts a run before any classification.
type ConfigError struct {
	Company string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("payments: invalid configuration for %s: %v", e.Company, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConstructionError reports a failed payment instruction for one supplier.
type ConstructionError struct {
	Supplier string
	Invoices []string
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("payments: create instruction for supplier %s (%s): %v",
		e.Supplier, strings.Join(e.Invoices, ", "), e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}
