// Package userconfig defines the per-user LLM configuration boundary:
// consent, API-key availability, provider preference, and token budgets.
// Lookups may hit a remote service and can fail; the strategy selector
// absorbs those failures.
package userconfig

import (
	"context"
)

// UserConfig is the per-user state consulted before any LLM call.
type UserConfig struct {
	HasConsent        bool   `json:"has_consent"`
	HasOpenAI         bool   `json:"has_openai"`
	HasAnthropic      bool   `json:"has_anthropic"`
	PreferredProvider string `json:"preferred_provider"` // "openai" or "anthropic"

	// Platform allowance: a shared, operator-funded token pool the user may
	// opt into. Checked before the personal budget.
	UsePlatformAllowance       bool `json:"use_platform_allowance"`
	PlatformAllowanceRemaining int  `json:"platform_allowance_remaining"`

	// Personal monthly budget. BudgetLimit of nil means unlimited.
	BudgetLimit *int `json:"budget_limit,omitempty"`
	TokensUsed  int  `json:"tokens_used"`
}

// Provider looks up per-user LLM configuration.
type Provider interface {
	GetUserConfig(ctx context.Context, userID string) (UserConfig, error)
}

// StaticProvider serves one fixed configuration for every user. Used in
// single-tenant deployments where budgets come from the daemon config.
type StaticProvider struct {
	Config UserConfig
}

// GetUserConfig returns the fixed configuration.
func (s *StaticProvider) GetUserConfig(ctx context.Context, userID string) (UserConfig, error) {
	return s.Config, nil
}

// FuncProvider adapts a function to the Provider interface.
type FuncProvider func(ctx context.Context, userID string) (UserConfig, error)

// GetUserConfig calls the wrapped function.
func (f FuncProvider) GetUserConfig(ctx context.Context, userID string) (UserConfig, error) {
	return f(ctx, userID)
}

var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (FuncProvider)(nil)
)
