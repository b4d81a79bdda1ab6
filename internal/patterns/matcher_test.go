package patterns

import (
	"testing"
	"time"
)

func TestMatcher_AnalyzeEmail(t *testing.T) {
	m := NewMatcher()

	tests := []struct {
		name        string
		msg         Message
		wantRelated bool
		wantType    string
	}{
		{
			name: "offer on a property",
			msg: Message{
				ID:      "m1",
				Subject: "Offer on 123 Oak Street",
				Body:    "We'd like to submit an offer of $450,000 on 123 Oak Street.",
			},
			wantRelated: true,
			wantType:    "purchase",
		},
		{
			name: "escrow and earnest money",
			msg: Message{
				ID:   "m2",
				Body: "The escrow officer confirmed the earnest money deposit was received.",
			},
			wantRelated: true,
			wantType:    "purchase",
		},
		{
			name: "listing with MLS number",
			msg: Message{
				ID:   "m3",
				Body: "I listed the house today, MLS# 1234567. The listing price is $725,000.",
			},
			wantRelated: true,
			wantType:    "listing",
		},
		{
			name: "lease renewal",
			msg: Message{
				ID:   "m4",
				Body: "Your lease agreement expires next month; the monthly rent stays at $2,100.",
			},
			wantRelated: true,
			wantType:    "lease",
		},
		{
			name: "unrelated message",
			msg: Message{
				ID:   "m5",
				Body: "Are we still on for lunch tomorrow?",
			},
			wantRelated: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := m.AnalyzeEmail(tt.msg)

			if a.MessageID != tt.msg.ID {
				t.Errorf("MessageID = %q, want %q", a.MessageID, tt.msg.ID)
			}
			if a.IsRealEstateRelated != tt.wantRelated {
				t.Errorf("IsRealEstateRelated = %v, want %v (confidence %d)",
					a.IsRealEstateRelated, tt.wantRelated, a.Confidence)
			}
			if a.Confidence < 0 || a.Confidence > 100 {
				t.Errorf("Confidence = %d, want 0-100", a.Confidence)
			}
			if tt.wantRelated && a.TransactionType != tt.wantType {
				t.Errorf("TransactionType = %q, want %q", a.TransactionType, tt.wantType)
			}
		})
	}
}

func TestMatcher_Extraction(t *testing.T) {
	m := NewMatcher()

	a := m.AnalyzeEmail(Message{
		ID:      "m1",
		Subject: "Closing date for 456 Maple Ave",
		Body: "The closing date is set for March 15, 2026. " +
			"Purchase price $512,500. The buyer and the listing agent both signed. MLS# AB1234567.",
	})

	if len(a.Addresses) == 0 {
		t.Errorf("Addresses empty, want 456 Maple Ave extracted")
	}
	if len(a.Amounts) != 1 || a.Amounts[0] != "$512,500" {
		t.Errorf("Amounts = %v, want [$512,500]", a.Amounts)
	}
	if len(a.Dates) == 0 {
		t.Errorf("Dates empty, want March 15, 2026 extracted")
	}
	if len(a.MLSNumbers) != 1 || a.MLSNumbers[0] != "AB1234567" {
		t.Errorf("MLSNumbers = %v, want [AB1234567]", a.MLSNumbers)
	}
	if len(a.Parties) < 2 {
		t.Errorf("Parties = %v, want buyer and listing agent", a.Parties)
	}
}

func TestMatcher_RelatedScoreThreshold(t *testing.T) {
	m := NewMatcher()

	// A lone offer keyword scores exactly the relatedness bar.
	at := m.AnalyzeEmail(Message{ID: "m1", Body: "They accepted an offer."})
	if at.Confidence != RelatedScoreThreshold {
		t.Fatalf("Confidence = %d, want %d", at.Confidence, RelatedScoreThreshold)
	}
	if !at.IsRealEstateRelated {
		t.Errorf("score at threshold should classify as related")
	}

	// A lone escrow keyword scores below it.
	below := m.AnalyzeEmail(Message{ID: "m2", Body: "Escrow opened yesterday."})
	if below.Confidence >= RelatedScoreThreshold {
		t.Fatalf("Confidence = %d, want below %d", below.Confidence, RelatedScoreThreshold)
	}
	if below.IsRealEstateRelated {
		t.Errorf("score below threshold should not classify as related")
	}
}

func TestMatcher_GroupByProperty(t *testing.T) {
	m := NewMatcher()

	results := []Analysis{
		{MessageID: "m1", IsRealEstateRelated: true, Addresses: []string{"123 Oak Street"}},
		{MessageID: "m2", IsRealEstateRelated: true, Addresses: []string{"123 Oak St"}},
		{MessageID: "m3", IsRealEstateRelated: true, Addresses: []string{"9 Elm Drive"}},
		{MessageID: "m4", IsRealEstateRelated: true, MLSNumbers: []string{"1234567"}},
		{MessageID: "m5", IsRealEstateRelated: false},
	}

	groups := m.GroupByProperty(results)

	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3: %v", len(groups), groups)
	}
	// Address variants normalize to the same key.
	if got := len(groups["123 oak st"]); got != 2 {
		t.Errorf("123 oak st group has %d members, want 2", got)
	}
	if _, ok := groups["mls:1234567"]; !ok {
		t.Errorf("expected MLS fallback group, got %v", groups)
	}
}

func TestMatcher_GenerateTransactionSummary(t *testing.T) {
	m := NewMatcher()

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

	cluster := []Analysis{
		{
			MessageID: "m1", IsRealEstateRelated: true, Confidence: 60,
			TransactionType: "purchase", Addresses: []string{"123 Oak Street"},
			Keywords: []string{"offer"}, SentAt: t2,
		},
		{
			MessageID: "m2", IsRealEstateRelated: true, Confidence: 80,
			TransactionType: "purchase", Keywords: []string{"escrow", "closing"},
			SentAt: t1,
		},
	}

	s := m.GenerateTransactionSummary(cluster)

	if s.PropertyAddress != "123 Oak Street" {
		t.Errorf("PropertyAddress = %q", s.PropertyAddress)
	}
	if s.TransactionType != "purchase" {
		t.Errorf("TransactionType = %q, want purchase", s.TransactionType)
	}
	if s.Confidence != 70 {
		t.Errorf("Confidence = %d, want 70", s.Confidence)
	}
	if s.Stage != "closing" {
		t.Errorf("Stage = %q, want closing (furthest along)", s.Stage)
	}
	if !s.DateStart.Equal(t1) || !s.DateEnd.Equal(t2) {
		t.Errorf("date range = %v..%v, want %v..%v", s.DateStart, s.DateEnd, t1, t2)
	}
	if s.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", s.MessageCount)
	}

	if empty := m.GenerateTransactionSummary(nil); empty.MessageCount != 0 {
		t.Errorf("empty cluster summary = %+v", empty)
	}
}
