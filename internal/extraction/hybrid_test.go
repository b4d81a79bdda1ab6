package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dealsense/internal/llm"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
	"github.com/fyrsmithlabs/dealsense/internal/userconfig"
)

// MockToolClient is a mock implementation of llm.ToolClient.
type MockToolClient struct {
	mock.Mock
}

func (m *MockToolClient) AnalyzeMessage(ctx context.Context, msg patterns.Message) (llm.MessageAnalysis, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(llm.MessageAnalysis), args.Error(1)
}

func (m *MockToolClient) ClusterMessages(ctx context.Context, msgs []patterns.Message, existing []llm.ExistingTransactionRef) ([]llm.TransactionCluster, error) {
	args := m.Called(ctx, msgs, existing)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]llm.TransactionCluster), args.Error(1)
}

func (m *MockToolClient) ExtractRoles(ctx context.Context, cluster llm.TransactionCluster, known []llm.Contact) (llm.RoleAssignments, error) {
	args := m.Called(ctx, cluster, known)
	return args.Get(0).(llm.RoleAssignments), args.Error(1)
}

func newTestExtractor(tools llm.ToolClient, cfg userconfig.UserConfig) *Extractor {
	selector := NewSelector(&userconfig.StaticProvider{Config: cfg}, nil)
	return NewExtractor(selector, NewAggregator(), patterns.NewMatcher(), tools, nil)
}

func testMessages() []patterns.Message {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []patterns.Message{
		{ID: "m1", Subject: "Offer on 123 Oak Street", Body: "We'd like to submit an offer of $450,000 on 123 Oak Street.", SentAt: base},
		{ID: "m2", Subject: "Re: 123 Oak Street", Body: "Escrow is open on 123 Oak Street; earnest money is due Friday.", SentAt: base.Add(48 * time.Hour)},
		{ID: "m3", Subject: "Lunch", Body: "Are we still on for lunch tomorrow?", SentAt: base.Add(time.Hour)},
	}
}

func analysisFor(id string, related bool, confidence float64) llm.MessageAnalysis {
	return llm.MessageAnalysis{
		MessageID:           id,
		IsRealEstateRelated: related,
		Confidence:          confidence,
		TransactionType:     "purchase",
		Usage:               llm.TokenUsage{Prompt: 50, Completion: 50, Total: 100},
	}
}

func onAnalyze(tools *MockToolClient, id string, analysis llm.MessageAnalysis, err error) {
	tools.On("AnalyzeMessage", mock.Anything, mock.MatchedBy(func(m patterns.Message) bool {
		return m.ID == id
	})).Return(analysis, err)
}

func TestExtract_PatternOnly(t *testing.T) {
	tools := &MockToolClient{}
	e := newTestExtractor(tools, fullAccessConfig())

	msgs := testMessages()
	result := e.Extract(context.Background(), msgs, nil, nil, Options{UsePatternMatching: true, UseLLM: false})

	require.True(t, result.Success)
	assert.Equal(t, MethodPattern, result.Method)
	assert.False(t, result.LLMUsed)
	assert.Nil(t, result.TokensUsed)
	assert.Empty(t, result.LLMError)

	require.Len(t, result.AnalyzedMessages, 3)
	for i, am := range result.AnalyzedMessages {
		assert.Equal(t, msgs[i].ID, am.ID)
		assert.Equal(t, MethodPattern, am.Method)
	}
	assert.True(t, result.AnalyzedMessages[0].IsRealEstateRelated)
	assert.False(t, result.AnalyzedMessages[2].IsRealEstateRelated)

	// m1 and m2 share a property, m3 is unrelated: one transaction.
	require.Len(t, result.DetectedTransactions, 1)
	tx := result.DetectedTransactions[0]
	assert.Equal(t, MethodPattern, tx.Method)
	assert.ElementsMatch(t, []string{"m1", "m2"}, tx.CommunicationIDs)
	assert.NotEmpty(t, tx.ID)
	assert.NotNil(t, tx.PatternSummary)

	tools.AssertNotCalled(t, "AnalyzeMessage", mock.Anything, mock.Anything)
	tools.AssertNotCalled(t, "ClusterMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_EmptyBatch(t *testing.T) {
	e := newTestExtractor(&MockToolClient{}, fullAccessConfig())

	result := e.Extract(context.Background(), nil, nil, nil, DefaultOptions())

	assert.True(t, result.Success)
	assert.Empty(t, result.AnalyzedMessages)
	assert.Empty(t, result.DetectedTransactions)
	assert.False(t, result.LLMUsed)
}

func TestExtract_NoAnalysisPathEnabled(t *testing.T) {
	e := newTestExtractor(&MockToolClient{}, fullAccessConfig())

	result := e.Extract(context.Background(), testMessages(), nil, nil, Options{})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestExtract_HybridHappyPath(t *testing.T) {
	tools := &MockToolClient{}
	onAnalyze(tools, "m1", analysisFor("m1", true, 0.9), nil)
	onAnalyze(tools, "m2", analysisFor("m2", true, 0.85), nil)
	onAnalyze(tools, "m3", analysisFor("m3", false, 0.8), nil)

	cluster := llm.TransactionCluster{
		PropertyAddress:  "123 Oak Street",
		TransactionType:  "purchase",
		Stage:            "escrow",
		CommunicationIDs: []string{"m1", "m2"},
		Confidence:       0.9,
		Summary:          "Purchase of 123 Oak Street in escrow",
		Usage:            llm.TokenUsage{Prompt: 200, Completion: 100, Total: 300},
	}
	tools.On("ClusterMessages", mock.Anything, mock.Anything, mock.Anything).
		Return([]llm.TransactionCluster{cluster}, nil)

	roles := llm.RoleAssignments{
		Contacts: []llm.ContactRole{
			{Contact: llm.Contact{Name: "Jane Doe"}, Role: "listing_agent", Confidence: 0.95},
		},
		Usage: llm.TokenUsage{Prompt: 60, Completion: 40, Total: 100},
	}
	tools.On("ExtractRoles", mock.Anything, mock.Anything, mock.Anything).Return(roles, nil)

	e := newTestExtractor(tools, fullAccessConfig())
	result := e.Extract(context.Background(), testMessages(), nil,
		[]llm.Contact{{Name: "Jane Doe"}}, DefaultOptions())

	require.True(t, result.Success)
	assert.Equal(t, MethodHybrid, result.Method)
	assert.True(t, result.LLMUsed)
	assert.Empty(t, result.LLMError)

	// 3 analyze calls + 1 cluster + 1 roles.
	require.NotNil(t, result.TokensUsed)
	assert.Equal(t, 700, result.TokensUsed.Total)

	require.Len(t, result.AnalyzedMessages, 3)
	for _, am := range result.AnalyzedMessages {
		assert.Equal(t, MethodHybrid, am.Method)
		require.NotNil(t, am.LLMAnalysis)
		require.NotNil(t, am.PatternAnalysis)
	}
	// The LLM is authoritative for classification.
	assert.False(t, result.AnalyzedMessages[2].IsRealEstateRelated)

	require.Len(t, result.DetectedTransactions, 1)
	tx := result.DetectedTransactions[0]
	assert.Equal(t, "123 Oak Street", tx.PropertyAddress)
	assert.Equal(t, MethodHybrid, tx.Method)
	assert.Equal(t, "escrow", tx.Stage)
	require.Len(t, tx.SuggestedContacts, 1)
	assert.Equal(t, "listing_agent", tx.SuggestedContacts[0].Role)
	assert.NotNil(t, tx.Cluster)
	assert.NotNil(t, tx.PatternSummary)
	assert.Greater(t, tx.Confidence, 0.8)
	assert.False(t, tx.DateRange.Start.IsZero())
}

func TestExtract_AllLLMCallsFail(t *testing.T) {
	tools := &MockToolClient{}
	tools.On("AnalyzeMessage", mock.Anything, mock.Anything).
		Return(llm.MessageAnalysis{}, errors.New("rate limited (429)"))
	tools.On("ClusterMessages", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))
	tools.On("ExtractRoles", mock.Anything, mock.Anything, mock.Anything).
		Return(llm.RoleAssignments{}, errors.New("timeout"))

	e := newTestExtractor(tools, fullAccessConfig())
	msgs := testMessages()
	result := e.Extract(context.Background(), msgs, nil, nil, DefaultOptions())

	// The deterministic baseline survives every LLM failure.
	require.True(t, result.Success)
	assert.True(t, result.LLMUsed)
	assert.NotEmpty(t, result.LLMError)
	require.NotNil(t, result.TokensUsed)
	assert.Equal(t, 0, result.TokensUsed.Total)

	require.Len(t, result.AnalyzedMessages, 3)
	for i, am := range result.AnalyzedMessages {
		assert.Equal(t, msgs[i].ID, am.ID)
		assert.Equal(t, MethodPattern, am.Method)
		assert.Nil(t, am.LLMAnalysis)
	}

	// Clustering fell back to deterministic grouping.
	require.Len(t, result.DetectedTransactions, 1)
	tx := result.DetectedTransactions[0]
	assert.Equal(t, MethodPattern, tx.Method)
	assert.Empty(t, tx.SuggestedContacts)
}

func TestExtract_StrategyDeclinesLLM(t *testing.T) {
	cfg := fullAccessConfig()
	cfg.HasConsent = false

	tools := &MockToolClient{}
	e := newTestExtractor(tools, cfg)

	result := e.Extract(context.Background(), testMessages(), nil, nil, DefaultOptions())

	require.True(t, result.Success)
	assert.False(t, result.LLMUsed)
	assert.Nil(t, result.TokensUsed)
	assert.Equal(t, MethodPattern, result.Method)
	tools.AssertNotCalled(t, "AnalyzeMessage", mock.Anything, mock.Anything)
}

func TestExtract_NilToolClient(t *testing.T) {
	e := newTestExtractor(nil, fullAccessConfig())

	result := e.Extract(context.Background(), testMessages(), nil, nil, DefaultOptions())

	require.True(t, result.Success)
	assert.False(t, result.LLMUsed)
	assert.Equal(t, MethodPattern, result.Method)
}

func TestExtract_OrderPreserved(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var msgs []patterns.Message
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	tools := &MockToolClient{}
	for _, id := range ids {
		msgs = append(msgs, patterns.Message{ID: id, Body: "escrow update", SentAt: base})
		onAnalyze(tools, id, analysisFor(id, true, 0.7), nil)
	}
	tools.On("ClusterMessages", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))
	tools.On("ExtractRoles", mock.Anything, mock.Anything, mock.Anything).
		Return(llm.RoleAssignments{}, errors.New("timeout"))

	e := newTestExtractor(tools, fullAccessConfig())
	result := e.Extract(context.Background(), msgs, nil, nil, DefaultOptions())

	// Concurrent analyze calls must not reorder output.
	require.Len(t, result.AnalyzedMessages, len(ids))
	for i, am := range result.AnalyzedMessages {
		assert.Equal(t, ids[i], am.ID)
		require.NotNil(t, am.LLMAnalysis)
		assert.Equal(t, ids[i], am.LLMAnalysis.MessageID)
	}
}

func TestExtract_NoTokenAccumulationAcrossCalls(t *testing.T) {
	tools := &MockToolClient{}
	for _, id := range []string{"m1", "m2", "m3"} {
		onAnalyze(tools, id, analysisFor(id, true, 0.8), nil)
	}
	tools.On("ClusterMessages", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))
	tools.On("ExtractRoles", mock.Anything, mock.Anything, mock.Anything).
		Return(llm.RoleAssignments{}, errors.New("timeout"))

	e := newTestExtractor(tools, fullAccessConfig())
	msgs := testMessages()

	first := e.Extract(context.Background(), msgs, nil, nil, DefaultOptions())
	second := e.Extract(context.Background(), msgs, nil, nil, DefaultOptions())

	require.NotNil(t, first.TokensUsed)
	require.NotNil(t, second.TokensUsed)
	assert.Equal(t, first.TokensUsed.Total, second.TokensUsed.Total)
}

func TestExtract_PartialLLMFailure(t *testing.T) {
	tools := &MockToolClient{}
	onAnalyze(tools, "m1", analysisFor("m1", true, 0.9), nil)
	onAnalyze(tools, "m2", llm.MessageAnalysis{}, errors.New("malformed analyze response"))
	onAnalyze(tools, "m3", analysisFor("m3", false, 0.8), nil)
	tools.On("ClusterMessages", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))
	tools.On("ExtractRoles", mock.Anything, mock.Anything, mock.Anything).
		Return(llm.RoleAssignments{}, nil)

	e := newTestExtractor(tools, fullAccessConfig())
	result := e.Extract(context.Background(), testMessages(), nil, nil, DefaultOptions())

	require.True(t, result.Success)
	assert.NotEmpty(t, result.LLMError)

	// m2's failure degrades m2 only; m1 and m3 keep their hybrid results.
	assert.Equal(t, MethodHybrid, result.AnalyzedMessages[0].Method)
	assert.Equal(t, MethodPattern, result.AnalyzedMessages[1].Method)
	assert.Equal(t, MethodHybrid, result.AnalyzedMessages[2].Method)
	assert.Nil(t, result.AnalyzedMessages[1].LLMAnalysis)
	assert.NotNil(t, result.AnalyzedMessages[1].PatternAnalysis)
}
