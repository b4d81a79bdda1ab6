// Package patterns implements deterministic, regex-based classification of
// communications as real-estate-transaction-related. It produces 0-100
// confidence scores and groups related messages by property address.
package patterns

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Message is the minimal communication shape the matcher inspects.
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      []string  `json:"to,omitempty"`
	Subject string    `json:"subject,omitempty"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Analysis is the matcher's verdict for a single message.
type Analysis struct {
	MessageID           string    `json:"message_id"`
	IsRealEstateRelated bool      `json:"is_real_estate_related"`
	Confidence          int       `json:"confidence"` // 0-100
	TransactionType     string    `json:"transaction_type,omitempty"`
	Addresses           []string  `json:"addresses,omitempty"`
	Amounts             []string  `json:"amounts,omitempty"`
	Dates               []string  `json:"dates,omitempty"`
	Parties             []string  `json:"parties,omitempty"`
	MLSNumbers          []string  `json:"mls_numbers,omitempty"`
	Keywords            []string  `json:"keywords,omitempty"`
	SentAt              time.Time `json:"sent_at"`
}

// TransactionSummary is a deterministic digest of one property cluster.
type TransactionSummary struct {
	PropertyAddress string    `json:"property_address"`
	TransactionType string    `json:"transaction_type,omitempty"`
	Stage           string    `json:"stage,omitempty"`
	Confidence      int       `json:"confidence"` // 0-100
	MessageCount    int       `json:"message_count"`
	DateStart       time.Time `json:"date_start"`
	DateEnd         time.Time `json:"date_end"`
	TopKeywords     []string  `json:"top_keywords,omitempty"`
}

// keywordPattern is a weighted detection pattern.
type keywordPattern struct {
	name   string
	regex  *regexp.Regexp
	weight int // contribution to the 0-100 score
	txType string
	stage  string
}

// Extraction regexes. These stay internal; callers only see the Analysis.
var (
	addressRe = regexp.MustCompile(`(?i)\b\d{1,6}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Boulevard|Blvd|Drive|Dr|Lane|Ln|Road|Rd|Court|Ct|Place|Pl|Way|Terrace|Ter|Circle|Cir)\.?\b`)
	amountRe  = regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?\b|\$\s?\d+(?:\.\d+)?[kKmM]\b`)
	dateRe    = regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+\d{1,2}(?:,?\s+\d{4})?\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	mlsRe     = regexp.MustCompile(`(?i)\bMLS\s?#?\s?([A-Z]{0,2}\d{6,10})\b`)
	partyRe   = regexp.MustCompile(`(?i)\b(?:buyer|seller|listing agent|buyer'?s agent|escrow officer|lender|inspector|appraiser|title officer)\b`)
)

// defaultPatterns returns the built-in weighted keyword patterns.
func defaultPatterns() []keywordPattern {
	specs := []struct {
		name   string
		expr   string
		weight int
		txType string
		stage  string
	}{
		{"offer", `(?i)\b(?:submit|submitted|accept|accepted|counter)\s?(?:an?\s)?offer\b`, 30, "purchase", "offer"},
		{"escrow", `(?i)\bescrow\b`, 25, "purchase", "escrow"},
		{"closing", `(?i)\bclos(?:e|ing)\s(?:date|costs|disclosure)\b`, 25, "purchase", "closing"},
		{"inspection", `(?i)\b(?:home\s)?inspection\b`, 20, "purchase", "inspection"},
		{"appraisal", `(?i)\bapprais(?:al|er)\b`, 20, "purchase", "inspection"},
		{"listing", `(?i)\blist(?:ed|ing)\s(?:price|agreement|the\s(?:house|home|property))\b`, 25, "listing", "listing"},
		{"showing", `(?i)\bshowing(?:s)?\b|\bopen\shouse\b`, 15, "listing", "listing"},
		{"earnest", `(?i)\bearnest\smoney\b`, 25, "purchase", "escrow"},
		{"title", `(?i)\btitle\s(?:company|report|insurance)\b`, 20, "purchase", "escrow"},
		{"mortgage", `(?i)\b(?:mortgage|pre-?approv(?:al|ed)|loan\sestimate)\b`, 20, "purchase", "financing"},
		{"contingency", `(?i)\bcontingenc(?:y|ies)\b`, 20, "purchase", "escrow"},
		{"lease", `(?i)\blease\s(?:agreement|term|renewal)\b`, 25, "lease", "lease"},
		{"rent", `(?i)\b(?:monthly\srent|security\sdeposit)\b`, 20, "lease", "lease"},
	}

	patterns := make([]keywordPattern, 0, len(specs))
	for _, s := range specs {
		patterns = append(patterns, keywordPattern{
			name:   s.name,
			regex:  regexp.MustCompile(s.expr),
			weight: s.weight,
			txType: s.txType,
			stage:  s.stage,
		})
	}
	return patterns
}

// RelatedScoreThreshold is the 0-100 score at or above which a message is
// classified as real-estate related. Callers comparing aggregate pattern
// scores (e.g. cluster summaries) against relatedness use the same bar.
const RelatedScoreThreshold = 30

// Matcher classifies messages using pre-compiled patterns.
type Matcher struct {
	patterns []keywordPattern
}

// NewMatcher creates a matcher with the built-in pattern set.
func NewMatcher() *Matcher {
	return &Matcher{patterns: defaultPatterns()}
}

// AnalyzeEmail classifies a single message. It never fails; a message with
// no signal scores zero.
func (m *Matcher) AnalyzeEmail(msg Message) Analysis {
	text := msg.Subject + "\n" + msg.Body

	a := Analysis{
		MessageID: msg.ID,
		SentAt:    msg.SentAt,
	}

	score := 0
	typeVotes := map[string]int{}
	stageVotes := map[string]int{}
	for _, p := range m.patterns {
		if !p.regex.MatchString(text) {
			continue
		}
		score += p.weight
		a.Keywords = append(a.Keywords, p.name)
		typeVotes[p.txType] += p.weight
		stageVotes[p.stage] += p.weight
	}

	a.Addresses = dedupe(addressRe.FindAllString(text, -1))
	a.Amounts = dedupe(amountRe.FindAllString(text, -1))
	a.Dates = dedupe(dateRe.FindAllString(text, -1))
	a.Parties = dedupe(lowerAll(partyRe.FindAllString(text, -1)))
	for _, match := range mlsRe.FindAllStringSubmatch(text, -1) {
		a.MLSNumbers = append(a.MLSNumbers, match[1])
	}
	a.MLSNumbers = dedupe(a.MLSNumbers)

	// Structural evidence counts even without keyword hits.
	if len(a.Addresses) > 0 {
		score += 15
	}
	if len(a.MLSNumbers) > 0 {
		score += 20
	}
	if len(a.Amounts) > 0 && len(a.Keywords) > 0 {
		score += 10
	}
	if len(a.Parties) > 0 {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	a.Confidence = score
	a.IsRealEstateRelated = score >= RelatedScoreThreshold
	a.TransactionType = topVote(typeVotes)
	return a
}

// GroupByProperty groups analyses by normalized property address. Analyses
// without an address land in per-message fallback groups so nothing is
// silently dropped.
func (m *Matcher) GroupByProperty(results []Analysis) map[string][]Analysis {
	groups := make(map[string][]Analysis)
	for _, r := range results {
		if !r.IsRealEstateRelated {
			continue
		}
		key := ""
		if len(r.Addresses) > 0 {
			key = normalizeAddress(r.Addresses[0])
		} else if len(r.MLSNumbers) > 0 {
			key = "mls:" + r.MLSNumbers[0]
		} else {
			key = "msg:" + r.MessageID
		}
		groups[key] = append(groups[key], r)
	}
	return groups
}

// GenerateTransactionSummary digests a cluster of analyses into a summary.
func (m *Matcher) GenerateTransactionSummary(cluster []Analysis) TransactionSummary {
	var s TransactionSummary
	if len(cluster) == 0 {
		return s
	}

	s.MessageCount = len(cluster)
	s.DateStart = cluster[0].SentAt
	s.DateEnd = cluster[0].SentAt

	typeVotes := map[string]int{}
	keywordCounts := map[string]int{}
	total := 0
	for _, a := range cluster {
		total += a.Confidence
		if a.TransactionType != "" {
			typeVotes[a.TransactionType]++
		}
		for _, kw := range a.Keywords {
			keywordCounts[kw]++
		}
		if s.PropertyAddress == "" && len(a.Addresses) > 0 {
			s.PropertyAddress = a.Addresses[0]
		}
		if a.SentAt.Before(s.DateStart) {
			s.DateStart = a.SentAt
		}
		if a.SentAt.After(s.DateEnd) {
			s.DateEnd = a.SentAt
		}
	}

	s.Confidence = total / len(cluster)
	s.TransactionType = topVote(typeVotes)
	s.Stage = dominantStage(keywordCounts)
	s.TopKeywords = topKeywords(keywordCounts, 5)
	return s
}

// stageOrder ranks stages so the furthest-along stage wins.
var stageOrder = []string{"closing", "escrow", "inspection", "financing", "offer", "listing", "lease"}

// stageByKeyword maps keyword pattern names to stages.
var stageByKeyword = map[string]string{
	"offer":       "offer",
	"escrow":      "escrow",
	"earnest":     "escrow",
	"title":       "escrow",
	"contingency": "escrow",
	"closing":     "closing",
	"inspection":  "inspection",
	"appraisal":   "inspection",
	"mortgage":    "financing",
	"listing":     "listing",
	"showing":     "listing",
	"lease":       "lease",
	"rent":        "lease",
}

func dominantStage(keywordCounts map[string]int) string {
	seen := map[string]bool{}
	for kw, n := range keywordCounts {
		if n > 0 {
			if stage, ok := stageByKeyword[kw]; ok {
				seen[stage] = true
			}
		}
	}
	for _, stage := range stageOrder {
		if seen[stage] {
			return stage
		}
	}
	return ""
}

func topVote(votes map[string]int) string {
	best, bestN := "", 0
	for k, n := range votes {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func topKeywords(counts map[string]int, limit int) []string {
	type kc struct {
		k string
		n int
	}
	all := make([]kc, 0, len(counts))
	for k, n := range counts {
		all = append(all, kc{k, n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].n != all[j].n {
			return all[i].n > all[j].n
		}
		return all[i].k < all[j].k
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.k
	}
	return out
}

func normalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	s = strings.TrimSuffix(s, ".")
	replacements := []struct{ long, short string }{
		{"street", "st"}, {"avenue", "ave"}, {"boulevard", "blvd"},
		{"drive", "dr"}, {"lane", "ln"}, {"road", "rd"},
		{"court", "ct"}, {"place", "pl"}, {"terrace", "ter"}, {"circle", "cir"},
	}
	for _, r := range replacements {
		if strings.HasSuffix(s, " "+r.long) {
			s = strings.TrimSuffix(s, r.long) + r.short
			break
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
