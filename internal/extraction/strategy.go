package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dealsense/internal/userconfig"
)

// Token cost model. Per-message analysis dominates; clustering and contact
// extraction happen once per batch regardless of message count.
const (
	tokensPerMessage        = 800
	clusteringTokens        = 1500
	contactExtractionTokens = 1200

	// MinTokensForExtraction is the floor below which an extraction is not
	// started at all: a run guaranteed to exhaust its budget partway
	// through wastes the tokens it does spend.
	MinTokensForExtraction = 2000
)

// Selector decides which extraction method(s) to run for a user. It has no
// fatal errors: every code path returns a valid Strategy, and lookup
// failures are absorbed into the reason of a pattern-only result.
type Selector struct {
	users  userconfig.Provider
	logger *zap.Logger
}

// NewSelector creates a strategy selector backed by the given user-config
// provider.
func NewSelector(users userconfig.Provider, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{users: users, logger: logger}
}

// EstimateTokenCost estimates the token cost of extracting messageCount
// messages. Zero or negative counts still cost the per-batch clustering and
// contact-extraction calls.
func (s *Selector) EstimateTokenCost(messageCount int) int {
	if messageCount < 0 {
		messageCount = 0
	}
	return messageCount*tokensPerMessage + clusteringTokens + contactExtractionTokens
}

// patternOnly builds the universal fallback strategy with a specific
// reason.
func patternOnly(reason string) Strategy {
	return Strategy{
		Method:         MethodPattern,
		Reason:         reason,
		FallbackMethod: MethodPattern,
	}
}

// SelectStrategy resolves the extraction strategy for a user. The decision
// hierarchy short-circuits at the first failing check; every branch
// resolves without error.
func (s *Selector) SelectStrategy(ctx context.Context, userID string, sctx *StrategyContext) Strategy {
	if sctx == nil {
		sctx = &StrategyContext{}
	}

	cfg, err := s.users.GetUserConfig(ctx, userID)
	if err != nil {
		s.logger.Warn("user config lookup failed, falling back to pattern matching",
			zap.String("user_id", userID),
			zap.Error(err))
		return patternOnly("Error checking LLM availability, using pattern matching")
	}

	if !cfg.HasConsent {
		return patternOnly("User has not granted consent for LLM analysis")
	}

	if !cfg.HasOpenAI && !cfg.HasAnthropic {
		return patternOnly("No LLM provider API key configured")
	}

	provider, ok := s.pickProvider(cfg)
	if !ok {
		return patternOnly("Neither openai nor anthropic is available")
	}

	cost := s.EstimateTokenCost(sctx.MessageCount)

	if strategy, ok := s.checkBudget(cfg, cost); !ok {
		return strategy
	}

	strategy := Strategy{
		Method:             MethodHybrid,
		Provider:           provider,
		Reason:             fmt.Sprintf("Hybrid extraction available with %s", provider),
		FallbackMethod:     MethodPattern,
		EstimatedTokenCost: &cost,
	}
	if remaining, limited := budgetRemaining(cfg); limited {
		strategy.BudgetRemaining = &remaining
	}
	return strategy
}

// pickProvider prefers the user's preferred provider when its key is
// present, then falls back to the other provider.
func (s *Selector) pickProvider(cfg userconfig.UserConfig) (Provider, bool) {
	preferred := Provider(cfg.PreferredProvider)
	if preferred != ProviderOpenAI && preferred != ProviderAnthropic {
		preferred = ProviderAnthropic
	}

	hasKey := func(p Provider) bool {
		if p == ProviderOpenAI {
			return cfg.HasOpenAI
		}
		return cfg.HasAnthropic
	}

	if hasKey(preferred) {
		return preferred, true
	}
	other := ProviderOpenAI
	if preferred == ProviderOpenAI {
		other = ProviderAnthropic
	}
	if hasKey(other) {
		return other, true
	}
	return "", false
}

// budgetRemaining returns the user's remaining tokens and whether any limit
// applies. The platform allowance takes precedence when opted into.
func budgetRemaining(cfg userconfig.UserConfig) (int, bool) {
	if cfg.UsePlatformAllowance {
		return cfg.PlatformAllowanceRemaining, true
	}
	if cfg.BudgetLimit != nil {
		return *cfg.BudgetLimit - cfg.TokensUsed, true
	}
	return 0, false
}

// checkBudget verifies the estimated cost fits the user's budget. On
// failure it returns the pattern-only strategy to use; ok is true when the
// budget allows extraction.
func (s *Selector) checkBudget(cfg userconfig.UserConfig, cost int) (Strategy, bool) {
	remaining, limited := budgetRemaining(cfg)
	if !limited {
		return Strategy{}, true
	}

	if remaining >= MinTokensForExtraction && remaining >= cost {
		return Strategy{}, true
	}

	source := "Monthly token budget"
	if cfg.UsePlatformAllowance {
		source = "Platform allowance"
	}
	strategy := patternOnly(fmt.Sprintf(
		"%s too low (%d tokens remaining, %d estimated), using pattern matching",
		source, remaining, cost))
	strategy.BudgetRemaining = &remaining
	strategy.EstimatedTokenCost = &cost
	return strategy, false
}

// SelectLLMOnlyStrategy resolves a strategy for callers that want LLM
// analysis without the pattern pass. When LLM is unavailable the reason
// explains why; the method still degrades to pattern.
func (s *Selector) SelectLLMOnlyStrategy(ctx context.Context, userID string, sctx *StrategyContext) Strategy {
	strategy := s.SelectStrategy(ctx, userID, sctx)
	if strategy.Method == MethodPattern {
		strategy.Reason = "LLM-only not available: " + strategy.Reason
		return strategy
	}
	strategy.Method = MethodLLM
	strategy.Reason = fmt.Sprintf("LLM-only analysis requested and available with %s", strategy.Provider)
	return strategy
}

// PatternOnlyStrategy returns the constant strategy for an explicit
// caller override.
func (s *Selector) PatternOnlyStrategy() Strategy {
	return patternOnly("Pattern-only mode explicitly requested")
}
