package extraction

import (
	"time"

	"github.com/fyrsmithlabs/dealsense/internal/llm"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

// Method identifies which analysis path produced a result.
type Method string

const (
	MethodPattern Method = "pattern"
	MethodLLM     Method = "llm"
	MethodHybrid  Method = "hybrid"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Strategy is the resolved decision of which extraction method(s) to run
// for one request, with its rationale. Created fresh per SelectStrategy
// call and immutable once returned. FallbackMethod is always
// MethodPattern, the only strategy guaranteed never to fail.
type Strategy struct {
	Method             Method   `json:"method"`
	Provider           Provider `json:"provider,omitempty"`
	Reason             string   `json:"reason"`
	FallbackMethod     Method   `json:"fallback_method"`
	BudgetRemaining    *int     `json:"budget_remaining,omitempty"`
	EstimatedTokenCost *int     `json:"estimated_token_cost,omitempty"`
}

// StrategyContext carries request-scoped hints into strategy selection.
// It is ephemeral and never stored.
type StrategyContext struct {
	MessageCount   int    `json:"message_count"`
	PreviousMethod Method `json:"previous_method,omitempty"`
}

// Options controls one extraction request. Supplied by the caller once per
// request and not mutated by the pipeline.
type Options struct {
	UsePatternMatching bool     `json:"use_pattern_matching"`
	UseLLM             bool     `json:"use_llm"`
	Provider           Provider `json:"provider,omitempty"`
	UserID             string   `json:"user_id,omitempty"`
}

// DefaultOptions returns the documented defaults: both analysis paths on.
func DefaultOptions() Options {
	return Options{
		UsePatternMatching: true,
		UseLLM:             true,
	}
}

// AnalyzedMessage is one input message plus the verdicts of each analysis
// path and the merged classification.
type AnalyzedMessage struct {
	patterns.Message

	PatternAnalysis *patterns.Analysis   `json:"pattern_analysis,omitempty"`
	LLMAnalysis     *llm.MessageAnalysis `json:"llm_analysis,omitempty"`

	IsRealEstateRelated bool    `json:"is_real_estate_related"`
	TransactionType     string  `json:"transaction_type,omitempty"`
	Confidence          float64 `json:"confidence"` // 0-1, merged
	Method              Method  `json:"extraction_method"`
}

// DateRange spans the communications of one detected transaction.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DetectedTransaction is one candidate transaction assembled from a cluster
// of analyzed messages. Persistence is the caller's concern.
type DetectedTransaction struct {
	ID                string                       `json:"id"`
	PropertyAddress   string                       `json:"property_address"`
	TransactionType   string                       `json:"transaction_type,omitempty"`
	Stage             string                       `json:"stage,omitempty"`
	Confidence        float64                      `json:"confidence"` // 0-1
	Method            Method                       `json:"extraction_method"`
	CommunicationIDs  []string                     `json:"communication_ids"`
	DateRange         DateRange                    `json:"date_range"`
	SuggestedContacts []llm.ContactRole            `json:"suggested_contacts,omitempty"`
	Summary           string                       `json:"summary,omitempty"`
	Cluster           *llm.TransactionCluster      `json:"cluster,omitempty"`
	PatternSummary    *patterns.TransactionSummary `json:"pattern_summary,omitempty"`
}

// Result is the outcome of one Extract call. Success is false only on a
// pipeline-level fatal condition outside the LLM path; LLM failures degrade
// to pattern results and leave Success true.
type Result struct {
	Success              bool                  `json:"success"`
	Error                string                `json:"error,omitempty"`
	AnalyzedMessages     []AnalyzedMessage     `json:"analyzed_messages"`
	DetectedTransactions []DetectedTransaction `json:"detected_transactions"`
	Method               Method                `json:"extraction_method"`
	LLMUsed              bool                  `json:"llm_used"`
	LLMError             string                `json:"llm_error,omitempty"`
	TokensUsed           *llm.TokenUsage       `json:"tokens_used,omitempty"` // non-nil iff LLMUsed
	LatencyMS            int64                 `json:"latency_ms"`
}
