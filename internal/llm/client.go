package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

// analyzePrompt is the system prompt for per-message analysis.
const analyzePrompt = `You are an expert at reading emails and text messages between real estate agents, clients, lenders, escrow officers, and inspectors.

Classify the provided message. Respond with a JSON object containing:
- "is_real_estate_related": whether the message concerns a real estate transaction (boolean)
- "confidence": your confidence in the classification (0.0 to 1.0)
- "transaction_type": "purchase", "listing", or "lease" if apparent (optional)
- "property_address": the property address if one is mentioned (optional)
- "summary": a one-sentence summary of the message (optional)

Respond ONLY with the JSON object, no additional text.`

// clusterPrompt is the system prompt for batch clustering.
const clusterPrompt = `You are an expert at organizing real estate communications into transactions.

You receive a list of messages and a list of existing transactions. Group the messages into candidate transactions, attaching messages to an existing transaction when they clearly belong to it.

Respond with a JSON array of objects, each containing:
- "transaction_id": the existing transaction id if matched, otherwise omit
- "property_address": the property the cluster concerns
- "transaction_type": "purchase", "listing", or "lease" if apparent (optional)
- "stage": "listing", "offer", "financing", "inspection", "escrow", or "closing" if apparent (optional)
- "communication_ids": the ids of the messages in this cluster
- "confidence": your confidence in the grouping (0.0 to 1.0)
- "summary": a one-sentence summary of the transaction so far (optional)

Every message id must appear in at most one cluster. Respond ONLY with the JSON array, no additional text.`

// rolesPrompt is the system prompt for contact role extraction.
const rolesPrompt = `You are an expert at identifying the roles people play in a real estate transaction.

You receive a transaction summary and a list of known contacts. Assign a role to each contact that participates in the transaction.

Respond with a JSON object containing:
- "contacts": an array of objects, each with "name", "email" (optional), "role" (one of "buyer", "seller", "buyer_agent", "listing_agent", "lender", "escrow", "inspector", "other"), and "confidence" (0.0 to 1.0)

Only include contacts that appear in the transaction. Respond ONLY with the JSON object, no additional text.`

// Client implements ToolClient over a provider backend.
type Client struct {
	backend completer
}

// NewToolClient creates a tool client for the configured provider.
func NewToolClient(cfg Config) (*Client, error) {
	switch cfg.Provider {
	case "anthropic":
		backend, err := newAnthropicBackend(cfg)
		if err != nil {
			return nil, err
		}
		return &Client{backend: backend}, nil
	case "openai":
		backend, err := newOpenAIBackend(cfg)
		if err != nil {
			return nil, err
		}
		return &Client{backend: backend}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Provider returns the name of the underlying provider.
func (c *Client) Provider() string {
	return c.backend.provider()
}

// AnalyzeMessage classifies a single message semantically.
func (c *Client) AnalyzeMessage(ctx context.Context, msg patterns.Message) (MessageAnalysis, error) {
	user := fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s",
		msg.From, msg.Subject, msg.SentAt.Format("2006-01-02"), msg.Body)

	text, usage, err := c.backend.complete(ctx, analyzePrompt, user)
	if err != nil {
		return MessageAnalysis{}, err
	}

	var analysis MessageAnalysis
	if err := json.Unmarshal(stripFences(text), &analysis); err != nil {
		return MessageAnalysis{}, fmt.Errorf("malformed analyze response: %w", err)
	}

	analysis.MessageID = msg.ID
	analysis.Confidence = clamp01(analysis.Confidence)
	analysis.Usage = usage
	return analysis, nil
}

// ClusterMessages groups messages into candidate transactions.
func (c *Client) ClusterMessages(ctx context.Context, msgs []patterns.Message, existing []ExistingTransactionRef) ([]TransactionCluster, error) {
	payload := struct {
		Messages     []patterns.Message       `json:"messages"`
		Transactions []ExistingTransactionRef `json:"existing_transactions"`
	}{Messages: msgs, Transactions: existing}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cluster input: %w", err)
	}

	text, usage, err := c.backend.complete(ctx, clusterPrompt, string(body))
	if err != nil {
		return nil, err
	}

	var clusters []TransactionCluster
	if err := json.Unmarshal(stripFences(text), &clusters); err != nil {
		return nil, fmt.Errorf("malformed cluster response: %w", err)
	}

	// Usage belongs to the whole call; attach it to the first cluster so the
	// caller's accumulator sees it exactly once.
	for i := range clusters {
		clusters[i].Confidence = clamp01(clusters[i].Confidence)
	}
	if len(clusters) > 0 {
		clusters[0].Usage = usage
	}
	return clusters, nil
}

// ExtractRoles assigns transaction roles to contacts for one cluster.
func (c *Client) ExtractRoles(ctx context.Context, cluster TransactionCluster, known []Contact) (RoleAssignments, error) {
	payload := struct {
		Transaction TransactionCluster `json:"transaction"`
		Contacts    []Contact          `json:"known_contacts"`
	}{Transaction: cluster, Contacts: known}

	body, err := json.Marshal(payload)
	if err != nil {
		return RoleAssignments{}, fmt.Errorf("failed to marshal roles input: %w", err)
	}

	text, usage, err := c.backend.complete(ctx, rolesPrompt, string(body))
	if err != nil {
		return RoleAssignments{}, err
	}

	var roles RoleAssignments
	if err := json.Unmarshal(stripFences(text), &roles); err != nil {
		return RoleAssignments{}, fmt.Errorf("malformed roles response: %w", err)
	}

	for i := range roles.Contacts {
		roles.Contacts[i].Confidence = clamp01(roles.Contacts[i].Confidence)
	}
	roles.Usage = usage
	return roles, nil
}

// stripFences cleans up model output. Models sometimes wrap JSON in
// markdown code blocks.
func stripFences(content string) []byte {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return []byte(strings.TrimSpace(content))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ ToolClient = (*Client)(nil)
