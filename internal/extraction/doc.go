// Package extraction implements hybrid classification of communications as
// real-estate-transaction-related and clustering into candidate
// transactions.
//
// Three components cooperate, leaves first:
//
//   - Aggregator fuses a 0-100 deterministic pattern score and a 0-1 LLM
//     score into one calibrated, explained confidence.
//   - Selector decides per user whether to run pattern-only, LLM-only, or
//     hybrid analysis, enforcing consent and token-budget policy. It never
//     fails; every code path resolves to at least a pattern-only plan.
//   - Extractor orchestrates the pipeline over a batch of messages: the
//     deterministic pattern pass always runs, the LLM pass degrades
//     per-call, and the caller always receives a usable result.
package extraction
