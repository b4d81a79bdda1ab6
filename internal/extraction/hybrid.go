package extraction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dealsense/internal/llm"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

// PatternMatcher is the deterministic analysis collaborator. The matcher is
// assumed synchronous; panics are caught per message by the extractor.
type PatternMatcher interface {
	AnalyzeEmail(msg patterns.Message) patterns.Analysis
	GroupByProperty(results []patterns.Analysis) map[string][]patterns.Analysis
	GenerateTransactionSummary(cluster []patterns.Analysis) patterns.TransactionSummary
}

// Extractor orchestrates hybrid extraction over a batch of messages. The
// pattern-matching baseline is always delivered, even when every LLM call
// fails.
type Extractor struct {
	selector   *Selector
	aggregator *Aggregator
	matcher    PatternMatcher
	tools      llm.ToolClient // nil disables the LLM path
	logger     *zap.Logger
	metrics    *Metrics
}

// NewExtractor creates an extractor with all dependencies injected. tools
// may be nil when no LLM provider is configured; logger may be nil.
func NewExtractor(selector *Selector, aggregator *Aggregator, matcher PatternMatcher, tools llm.ToolClient, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		selector:   selector,
		aggregator: aggregator,
		matcher:    matcher,
		tools:      tools,
		logger:     logger,
		metrics:    NewMetrics(logger),
	}
}

// batchState is the request-scoped mutable state of one Extract call.
// Never shared across calls; every call starts from zero.
type batchState struct {
	mu       sync.Mutex
	usage    llm.TokenUsage
	failures []string
}

func (b *batchState) addUsage(u llm.TokenUsage) {
	b.mu.Lock()
	b.usage.Add(u)
	b.mu.Unlock()
}

func (b *batchState) addFailure(msg string) {
	b.mu.Lock()
	b.failures = append(b.failures, msg)
	b.mu.Unlock()
}

// attempt runs one LLM tool call with per-call isolation: any error or
// panic is logged, counted, and reported as a failure, never propagated.
func attempt[T any](ctx context.Context, e *Extractor, state *batchState, tool string, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	val, err := func() (v T, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", tool, r)
			}
		}()
		return fn(ctx)
	}()
	e.metrics.RecordLLMCall(ctx, tool, err)
	if err != nil {
		e.logger.Warn("llm call failed, degrading to pattern baseline",
			zap.String("tool", tool),
			zap.Error(err))
		state.addFailure(fmt.Sprintf("%s: %v", tool, err))
		return zero, false
	}
	return val, true
}

// Extract runs the pipeline over a batch of messages. It never returns an
// error: LLM failures degrade per call, and only pipeline-level
// preconditions set Success to false.
func (e *Extractor) Extract(ctx context.Context, msgs []patterns.Message, existing []llm.ExistingTransactionRef, known []llm.Contact, opts Options) Result {
	start := time.Now()
	result := Result{
		Success:              true,
		AnalyzedMessages:     []AnalyzedMessage{},
		DetectedTransactions: []DetectedTransaction{},
		Method:               MethodPattern,
	}

	if !opts.UsePatternMatching && !opts.UseLLM {
		result.Success = false
		result.Error = "no analysis path enabled"
		result.LatencyMS = time.Since(start).Milliseconds()
		return result
	}

	if len(msgs) == 0 {
		result.LatencyMS = time.Since(start).Milliseconds()
		e.metrics.RecordExtraction(ctx, result.Method, time.Since(start).Seconds())
		return result
	}

	state := &batchState{}
	n := len(msgs)

	// Pattern pass: always runs when enabled. A matcher failure for one
	// message is isolated to that message's pattern result.
	patternResults := make([]*patterns.Analysis, n)
	if opts.UsePatternMatching {
		for i := range msgs {
			patternResults[i] = e.safeAnalyze(msgs[i])
		}
	}

	// Strategy resolution. A pattern decision is not an error; the reason
	// is logged, not surfaced.
	llmActive := false
	if opts.UseLLM && e.tools != nil {
		strategy := e.selector.SelectStrategy(ctx, opts.UserID, &StrategyContext{MessageCount: n})
		e.logger.Info("extraction strategy resolved",
			zap.String("user_id", opts.UserID),
			zap.String("method", string(strategy.Method)),
			zap.String("reason", strategy.Reason))
		llmActive = strategy.Method != MethodPattern
	} else if opts.UseLLM {
		e.logger.Debug("llm requested but no tool client configured")
	}

	// Per-message LLM analysis. Calls run concurrently; each result lands
	// at its original index regardless of completion order.
	llmResults := make([]*llm.MessageAnalysis, n)
	if llmActive {
		var wg sync.WaitGroup
		for i := range msgs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				msg := msgs[i]
				analysis, ok := attempt(ctx, e, state, "analyze", func(ctx context.Context) (llm.MessageAnalysis, error) {
					return e.tools.AnalyzeMessage(ctx, msg)
				})
				if !ok {
					return
				}
				llmResults[i] = &analysis
				state.addUsage(analysis.Usage)
			}(i)
		}
		wg.Wait()
	}

	result.AnalyzedMessages = e.mergeMessages(msgs, patternResults, llmResults)
	result.DetectedTransactions = e.detectTransactions(ctx, state, msgs, existing, known, patternResults, llmActive)

	if llmActive {
		result.LLMUsed = true
		usage := state.usage
		result.TokensUsed = &usage
		e.metrics.RecordTokens(ctx, usage.Prompt, usage.Completion)
		if opts.UsePatternMatching {
			result.Method = MethodHybrid
		} else {
			result.Method = MethodLLM
		}
		if len(state.failures) > 0 {
			result.LLMError = fmt.Sprintf("%d llm call(s) degraded to pattern baseline: %s",
				len(state.failures), state.failures[len(state.failures)-1])
		}
	}

	result.LatencyMS = time.Since(start).Milliseconds()
	e.metrics.RecordExtraction(ctx, result.Method, time.Since(start).Seconds())
	return result
}

// safeAnalyze runs the pattern matcher for one message, isolating panics.
func (e *Extractor) safeAnalyze(msg patterns.Message) (analysis *patterns.Analysis) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("pattern matcher failed for message",
				zap.String("message_id", msg.ID),
				zap.Any("panic", r))
			analysis = nil
		}
	}()
	a := e.matcher.AnalyzeEmail(msg)
	return &a
}

// mergeMessages fuses the per-message verdicts. Output order and ids
// strictly mirror the input; callers rely on this to match results back to
// source records.
func (e *Extractor) mergeMessages(msgs []patterns.Message, patternResults []*patterns.Analysis, llmResults []*llm.MessageAnalysis) []AnalyzedMessage {
	analyzed := make([]AnalyzedMessage, len(msgs))
	for i, msg := range msgs {
		am := AnalyzedMessage{
			Message:         msg,
			PatternAnalysis: patternResults[i],
			LLMAnalysis:     llmResults[i],
			Method:          MethodPattern,
		}

		var pv *PatternVerdict
		var lv *LLMVerdict
		if p := patternResults[i]; p != nil {
			pv = &PatternVerdict{Related: p.IsRealEstateRelated, Confidence: p.Confidence}
		}
		if l := llmResults[i]; l != nil {
			lv = &LLMVerdict{Related: l.IsRealEstateRelated, Confidence: l.Confidence}
		}
		am.Confidence = e.aggregator.AggregateForTransaction(pv, lv).Score

		// The LLM is authoritative for semantic fields when both sources
		// are present; disagreement is reflected in the confidence, not in
		// the classification.
		switch {
		case pv != nil && lv != nil:
			am.Method = MethodHybrid
			am.IsRealEstateRelated = llmResults[i].IsRealEstateRelated
			am.TransactionType = llmResults[i].TransactionType
			if am.TransactionType == "" {
				am.TransactionType = patternResults[i].TransactionType
			}
		case lv != nil:
			am.Method = MethodLLM
			am.IsRealEstateRelated = llmResults[i].IsRealEstateRelated
			am.TransactionType = llmResults[i].TransactionType
		case pv != nil:
			am.IsRealEstateRelated = patternResults[i].IsRealEstateRelated
			am.TransactionType = patternResults[i].TransactionType
		}

		analyzed[i] = am
	}
	return analyzed
}

// detectTransactions clusters the batch and assembles transactions. LLM
// clustering is attempted once; on failure the deterministic grouping
// takes over, so messages are never left ungrouped.
func (e *Extractor) detectTransactions(ctx context.Context, state *batchState, msgs []patterns.Message, existing []llm.ExistingTransactionRef, known []llm.Contact, patternResults []*patterns.Analysis, llmActive bool) []DetectedTransaction {
	patternByID := make(map[string]*patterns.Analysis, len(patternResults))
	sentAtByID := make(map[string]time.Time, len(msgs))
	for i, msg := range msgs {
		sentAtByID[msg.ID] = msg.SentAt
		if patternResults[i] != nil {
			patternByID[msg.ID] = patternResults[i]
		}
	}

	if llmActive {
		clusters, ok := attempt(ctx, e, state, "cluster", func(ctx context.Context) ([]llm.TransactionCluster, error) {
			return e.tools.ClusterMessages(ctx, msgs, existing)
		})
		if ok {
			transactions := make([]DetectedTransaction, 0, len(clusters))
			for _, cluster := range clusters {
				state.addUsage(cluster.Usage)
				transactions = append(transactions, e.transactionFromCluster(ctx, state, cluster, known, patternByID, sentAtByID))
			}
			return transactions
		}
	}

	return e.patternTransactions(ctx, state, known, patternResults, llmActive)
}

// transactionFromCluster builds one transaction from an LLM cluster,
// folding in the deterministic evidence for its messages.
func (e *Extractor) transactionFromCluster(ctx context.Context, state *batchState, cluster llm.TransactionCluster, known []llm.Contact, patternByID map[string]*patterns.Analysis, sentAtByID map[string]time.Time) DetectedTransaction {
	tx := DetectedTransaction{
		ID:               cluster.TransactionID,
		PropertyAddress:  cluster.PropertyAddress,
		TransactionType:  cluster.TransactionType,
		Stage:            cluster.Stage,
		Method:           MethodLLM,
		CommunicationIDs: cluster.CommunicationIDs,
		Summary:          cluster.Summary,
		Cluster:          &cluster,
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	var members []patterns.Analysis
	for _, id := range cluster.CommunicationIDs {
		if p, ok := patternByID[id]; ok {
			members = append(members, *p)
		}
	}

	lv := &LLMVerdict{Related: true, Confidence: cluster.Confidence}
	var pv *PatternVerdict
	if len(members) > 0 {
		summary := e.matcher.GenerateTransactionSummary(members)
		tx.PatternSummary = &summary
		tx.Method = MethodHybrid
		pv = &PatternVerdict{Related: summary.Confidence >= patterns.RelatedScoreThreshold, Confidence: summary.Confidence}
		if tx.PropertyAddress == "" {
			tx.PropertyAddress = summary.PropertyAddress
		}
		if tx.TransactionType == "" {
			tx.TransactionType = summary.TransactionType
		}
		if tx.Stage == "" {
			tx.Stage = summary.Stage
		}
		tx.DateRange = DateRange{Start: summary.DateStart, End: summary.DateEnd}
	} else {
		tx.DateRange = dateRangeFor(cluster.CommunicationIDs, sentAtByID)
	}
	tx.Confidence = e.aggregator.AggregateForTransaction(pv, lv).Score

	if assignments, ok := attempt(ctx, e, state, "roles", func(ctx context.Context) (llm.RoleAssignments, error) {
		return e.tools.ExtractRoles(ctx, cluster, known)
	}); ok {
		tx.SuggestedContacts = assignments.Contacts
		state.addUsage(assignments.Usage)
	}

	return tx
}

// patternTransactions groups related messages deterministically by
// property. When the LLM path is active, contact roles are still attempted
// for each group.
func (e *Extractor) patternTransactions(ctx context.Context, state *batchState, known []llm.Contact, patternResults []*patterns.Analysis, llmActive bool) []DetectedTransaction {
	var analyses []patterns.Analysis
	for _, p := range patternResults {
		if p != nil {
			analyses = append(analyses, *p)
		}
	}

	groups := e.matcher.GroupByProperty(analyses)

	// Map iteration order is random; sort keys so output is deterministic.
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	transactions := make([]DetectedTransaction, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		summary := e.matcher.GenerateTransactionSummary(group)

		ids := make([]string, len(group))
		for i, a := range group {
			ids[i] = a.MessageID
		}

		address := summary.PropertyAddress
		if address == "" {
			address = key
		}

		pv := &PatternVerdict{Related: true, Confidence: summary.Confidence}
		tx := DetectedTransaction{
			ID:               uuid.NewString(),
			PropertyAddress:  address,
			TransactionType:  summary.TransactionType,
			Stage:            summary.Stage,
			Confidence:       e.aggregator.AggregateForTransaction(pv, nil).Score,
			Method:           MethodPattern,
			CommunicationIDs: ids,
			DateRange:        DateRange{Start: summary.DateStart, End: summary.DateEnd},
			Summary:          fmt.Sprintf("%d message(s) regarding %s", len(group), address),
			PatternSummary:   &summary,
		}

		if llmActive {
			cluster := llm.TransactionCluster{
				PropertyAddress:  address,
				TransactionType:  summary.TransactionType,
				Stage:            summary.Stage,
				CommunicationIDs: ids,
			}
			if assignments, ok := attempt(ctx, e, state, "roles", func(ctx context.Context) (llm.RoleAssignments, error) {
				return e.tools.ExtractRoles(ctx, cluster, known)
			}); ok {
				tx.SuggestedContacts = assignments.Contacts
				state.addUsage(assignments.Usage)
			}
		}

		transactions = append(transactions, tx)
	}

	return transactions
}

// dateRangeFor computes a date range from message timestamps.
func dateRangeFor(ids []string, sentAtByID map[string]time.Time) DateRange {
	var r DateRange
	for _, id := range ids {
		ts, ok := sentAtByID[id]
		if !ok || ts.IsZero() {
			continue
		}
		if r.Start.IsZero() || ts.Before(r.Start) {
			r.Start = ts
		}
		if r.End.IsZero() || ts.After(r.End) {
			r.End = ts
		}
	}
	return r
}
