package causal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// fakeEmbedder returns a fixed vector per keyword hit, defaulting to the
// base vector, so coherence is fully deterministic in tests.
type fakeEmbedder struct {
	vectors map[string][]float32
	base    []float32
}

func (f *fakeEmbedder) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeEmbedder) ExtractStructured(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	text := strings.ToLower(string(input))
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return f.base, nil
}

func (f *fakeEmbedder) ResetMetrics()               {}
func (f *fakeEmbedder) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func uniformEmbedder() *fakeEmbedder {
	return &fakeEmbedder{base: []float32{1, 0, 0}}
}

func event(id, callID, passID, typ, description string, ordinal int) common.Event {
	return common.Event{
		ID:          id,
		CallID:      callID,
		PassID:      passID,
		Type:        typ,
		Description: description,
		Ordinal:     ordinal,
		Confidence:  0.9,
		Evidence: []common.EvidenceSpan{
			{ID: id + "-ev", CallID: callID, Start: ordinal, End: ordinal, Quote: description},
		},
	}
}

func TestScoreCall_CueLinkAboveThreshold(t *testing.T) {
	call := &common.Call{
		ID: "call-1",
		Utterances: []common.Utterance{
			{Seq: 0, Speaker: common.SpeakerCustomer, Text: "My internet was down for the whole week."},
			{Seq: 1, Speaker: common.SpeakerCustomer, Text: "That's why I want to cancel my subscription."},
		},
	}
	events := []common.Event{
		event("e1", call.ID, "pass-1", common.EventServiceFailure, "internet outage for a week", 0),
		event("e2", call.ID, "pass-1", common.EventCancellationIntent, "customer wants to cancel", 1),
	}

	scorer := NewScorer(uniformEmbedder(), DefaultConfig())
	links, err := scorer.ScoreCall(context.Background(), call, "pass-1", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	link := links[0]
	if link.CauseID != "e1" || link.EffectID != "e2" {
		t.Fatalf("unexpected direction: %s -> %s", link.CauseID, link.EffectID)
	}
	if link.Kind != common.RelationTriggering {
		t.Fatalf("expected triggering kind, got %q", link.Kind)
	}
	if link.Strength < DefaultConfig().MinStrength {
		t.Fatalf("strength %.3f below threshold", link.Strength)
	}
	if len(link.Evidence) != 1 || link.Evidence[0].Start != 1 {
		t.Fatalf("expected cue evidence at seq 1, got %+v", link.Evidence)
	}
	if !strings.Contains(link.Evidence[0].Quote, "That's why") {
		t.Fatalf("expected cue quote, got %q", link.Evidence[0].Quote)
	}
}

func TestScoreCall_NeverPointsBackInTime(t *testing.T) {
	call := &common.Call{
		ID: "call-1",
		Utterances: []common.Utterance{
			{Seq: 0, Text: "The refund arrived because the agent escalated it."},
			{Seq: 1, Text: "I am happy now."},
		},
	}
	events := []common.Event{
		event("late", call.ID, "pass-1", common.EventResolutionProvided, "refund arrived", 1),
		event("early", call.ID, "pass-1", common.EventEscalationRequested, "agent escalated", 0),
	}

	scorer := NewScorer(uniformEmbedder(), DefaultConfig())
	links, err := scorer.ScoreCall(context.Background(), call, "pass-1", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, link := range links {
		cause := events[0]
		if link.CauseID == "early" {
			cause = events[1]
		}
		effect := events[0]
		if link.EffectID == "early" {
			effect = events[1]
		}
		if cause.Ordinal > effect.Ordinal {
			t.Fatalf("link points back in time: %+v", link)
		}
	}
}

func TestScoreCall_WeakPairDiscarded(t *testing.T) {
	var utterances []common.Utterance
	for i := 0; i < 10; i++ {
		utterances = append(utterances, common.Utterance{Seq: i, Text: "filler turn about nothing in particular"})
	}
	call := &common.Call{ID: "call-1", Utterances: utterances}

	events := []common.Event{
		event("e1", call.ID, "pass-1", common.EventOfferMade, "alpha topic discount offer", 0),
		event("e2", call.ID, "pass-1", common.EventCommitmentMade, "beta topic callback promised", 8),
	}

	// Cause description embeds orthogonally to everything else, so
	// coherence stays low; no cue phrases appear in the transcript.
	client := &fakeEmbedder{
		vectors: map[string][]float32{"alpha": {1, 0, 0}},
		base:    []float32{0, 1, 0},
	}
	scorer := NewScorer(client, DefaultConfig())
	links, err := scorer.ScoreCall(context.Background(), call, "pass-1", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected weak pair to be discarded, got %+v", links)
	}
}

func TestScoreCall_RespectsMaxPairDistance(t *testing.T) {
	var utterances []common.Utterance
	for i := 0; i < 30; i++ {
		utterances = append(utterances, common.Utterance{Seq: i, Text: "turn"})
	}
	utterances[20].Text = "That's why I decided to cancel."
	call := &common.Call{ID: "call-1", Utterances: utterances}

	events := []common.Event{
		event("e1", call.ID, "pass-1", common.EventServiceFailure, "outage", 0),
		event("e2", call.ID, "pass-1", common.EventCancellationIntent, "cancel", 20),
	}

	scorer := NewScorer(uniformEmbedder(), DefaultConfig())
	links, err := scorer.ScoreCall(context.Background(), call, "pass-1", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected no links beyond max pair distance, got %d", len(links))
	}
}

func TestFindCue_WordBoundaries(t *testing.T) {
	utterances := []common.Utterance{
		{Seq: 0, Text: "I am sorry about the wait."},
	}
	if m := findCue(utterances, 0, 0); m != nil {
		t.Fatalf("expected no cue inside 'sorry', got %+v", m)
	}

	utterances[0].Text = "So I called back again."
	m := findCue(utterances, 0, 0)
	if m == nil {
		t.Fatal("expected 'so' cue on word boundary")
	}
	if m.cue.phrase != "so" {
		t.Fatalf("unexpected cue %q", m.cue.phrase)
	}
}

func TestFindCue_PrefersStrongerCue(t *testing.T) {
	utterances := []common.Utterance{
		{Seq: 0, Text: "I also called yesterday."},
		{Seq: 1, Text: "The line dropped, and that's why I am upset."},
	}
	m := findCue(utterances, 0, 1)
	if m == nil {
		t.Fatal("expected a cue")
	}
	if m.cue.phrase != "that's why" || m.seq != 1 {
		t.Fatalf("expected strongest cue at seq 1, got %q at %d", m.cue.phrase, m.seq)
	}
	if m.cue.kind != common.RelationTriggering {
		t.Fatalf("unexpected kind %q", m.cue.kind)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("expected ~1, got %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("expected 0 on length mismatch, got %f", got)
	}
}

func TestScoreCrossCall_RequiresSharedEntity(t *testing.T) {
	now := time.Now()
	a := &common.Call{ID: "call-a", IngestedAt: now.Add(-time.Hour), Metadata: common.CallMetadata{CustomerID: "cust-1"}}
	b := &common.Call{ID: "call-b", IngestedAt: now, Metadata: common.CallMetadata{CustomerID: "cust-2"}}

	eventsA := []common.Event{event("a1", a.ID, "pass-a", common.EventServiceFailure, "outage reported", 0)}
	eventsB := []common.Event{event("b1", b.ID, "pass-b", common.EventCancellationIntent, "wants to cancel", 0)}

	scorer := NewScorer(uniformEmbedder(), DefaultConfig())
	links, err := scorer.ScoreCrossCall(context.Background(), a, b, "pass-b", eventsA, eventsB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected no links without shared entity, got %d", len(links))
	}
}

func TestScoreCrossCall_SharedCustomerLink(t *testing.T) {
	now := time.Now()
	a := &common.Call{ID: "call-a", IngestedAt: now.Add(-time.Hour), Metadata: common.CallMetadata{CustomerID: "cust-1"}}
	b := &common.Call{ID: "call-b", IngestedAt: now, Metadata: common.CallMetadata{CustomerID: "cust-1"}}

	eventsA := []common.Event{event("a1", a.ID, "pass-a", common.EventServiceFailure, "repeated outage", 0)}
	eventsB := []common.Event{event("b1", b.ID, "pass-b", common.EventCancellationIntent, "cancels after outage", 0)}

	scorer := NewScorer(uniformEmbedder(), DefaultConfig())
	links, err := scorer.ScoreCrossCall(context.Background(), a, b, "pass-b", eventsA, eventsB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	link := links[0]
	if link.CauseID != "a1" || link.EffectID != "b1" {
		t.Fatalf("unexpected direction: %s -> %s", link.CauseID, link.EffectID)
	}
	if link.SharedEntity != "customer:cust-1" {
		t.Fatalf("unexpected shared entity %q", link.SharedEntity)
	}
	if link.Kind != common.RelationContributing {
		t.Fatalf("unexpected kind %q", link.Kind)
	}
	if link.Strength < DefaultConfig().CrossCallMinStrength {
		t.Fatalf("strength %.3f below cross-call threshold", link.Strength)
	}
}

func TestScoreCrossCall_BelowThresholdDiscarded(t *testing.T) {
	now := time.Now()
	a := &common.Call{ID: "call-a", IngestedAt: now.Add(-time.Hour), Metadata: common.CallMetadata{AccountID: "acct-9"}}
	b := &common.Call{ID: "call-b", IngestedAt: now, Metadata: common.CallMetadata{AccountID: "acct-9"}}

	eventsA := []common.Event{event("a1", a.ID, "pass-a", common.EventOfferMade, "alpha unrelated offer", 0)}
	eventsB := []common.Event{event("b1", b.ID, "pass-b", common.EventComplaintRaised, "beta unrelated complaint", 0)}

	client := &fakeEmbedder{
		vectors: map[string][]float32{"alpha": {1, 0, 0}},
		base:    []float32{0, 1, 0},
	}
	scorer := NewScorer(client, DefaultConfig())
	links, err := scorer.ScoreCrossCall(context.Background(), a, b, "pass-b", eventsA, eventsB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected orthogonal events to stay unlinked, got %d", len(links))
	}
}
