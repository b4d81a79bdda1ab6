// Package llm provides the LLM tool clients used by hybrid extraction:
// per-message semantic analysis, batch clustering into candidate
// transactions, and per-cluster contact role extraction. It supports the
// Anthropic and OpenAI APIs behind one ToolClient interface.
package llm

import (
	"context"

	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

// TokenUsage tracks token consumption for a single API call or an
// accumulation of calls.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}

// MessageAnalysis is the LLM verdict for a single message.
type MessageAnalysis struct {
	MessageID           string     `json:"message_id"`
	IsRealEstateRelated bool       `json:"is_real_estate_related"`
	Confidence          float64    `json:"confidence"` // 0-1
	TransactionType     string     `json:"transaction_type,omitempty"`
	PropertyAddress     string     `json:"property_address,omitempty"`
	Summary             string     `json:"summary,omitempty"`
	Usage               TokenUsage `json:"usage"`
}

// TransactionCluster is one candidate transaction proposed by the LLM
// clustering tool.
type TransactionCluster struct {
	TransactionID    string     `json:"transaction_id,omitempty"` // set when matched to an existing transaction
	PropertyAddress  string     `json:"property_address"`
	TransactionType  string     `json:"transaction_type,omitempty"`
	Stage            string     `json:"stage,omitempty"`
	CommunicationIDs []string   `json:"communication_ids"`
	Confidence       float64    `json:"confidence"` // 0-1
	Summary          string     `json:"summary,omitempty"`
	Usage            TokenUsage `json:"-"`
}

// ExistingTransactionRef identifies a transaction already known to the
// caller, so clustering can attach messages to it instead of proposing a
// duplicate.
type ExistingTransactionRef struct {
	ID              string `json:"id"`
	PropertyAddress string `json:"property_address"`
	TransactionType string `json:"transaction_type,omitempty"`
	Stage           string `json:"stage,omitempty"`
}

// Contact is a known contact supplied by the caller for role matching.
type Contact struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ContactRole assigns a transaction role to a contact.
type ContactRole struct {
	Contact
	Role       string  `json:"role"` // buyer, seller, buyer_agent, listing_agent, lender, escrow, inspector, other
	Confidence float64 `json:"confidence"`
}

// RoleAssignments is the result of contact role extraction for one cluster.
type RoleAssignments struct {
	Contacts []ContactRole `json:"contacts"`
	Usage    TokenUsage    `json:"-"`
}

// ToolClient is the surface the hybrid extractor calls. Every method may
// fail on timeout, rate limiting, or malformed model output; callers are
// expected to degrade to pattern results.
type ToolClient interface {
	// AnalyzeMessage classifies a single message semantically.
	AnalyzeMessage(ctx context.Context, msg patterns.Message) (MessageAnalysis, error)

	// ClusterMessages groups analyzed messages into candidate transactions,
	// matching against existing transactions where possible.
	ClusterMessages(ctx context.Context, msgs []patterns.Message, existing []ExistingTransactionRef) ([]TransactionCluster, error)

	// ExtractRoles assigns transaction roles to contacts for one cluster.
	ExtractRoles(ctx context.Context, cluster TransactionCluster, known []Contact) (RoleAssignments, error)
}

// Config holds provider-specific configuration.
type Config struct {
	Provider  string `json:"provider"` // "anthropic" or "openai"
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Timeout   int    `json:"timeout,omitempty"` // seconds
}
