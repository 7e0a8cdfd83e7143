package extract

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
)

type fakeCapability struct {
	extract func(prompt string, out any) error
	fail    int
	calls   int
}

func (f *fakeCapability) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeCapability) ExtractStructured(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("backend unavailable")
	}
	return f.extract(prompt, out)
}

func (f *fakeCapability) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeCapability) ResetMetrics()               {}
func (f *fakeCapability) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func testCall(n int) *common.Call {
	call := &common.Call{ID: "call-1"}
	for i := 0; i < n; i++ {
		call.Utterances = append(call.Utterances, common.Utterance{
			Seq:     i,
			Speaker: common.SpeakerCustomer,
			Text:    fmt.Sprintf("utterance number %d", i),
		})
	}
	return call
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxWindowTokens = 0 // no encoder in tests
	cfg.MaxRetries = 2
	cfg.ParallelWindows = 2
	return cfg
}

func TestBuildWindows_SizeAndOverlap(t *testing.T) {
	call := testCall(10)
	cfg := testConfig()
	cfg.WindowSize = 4
	cfg.Overlap = 1

	windows, err := BuildWindows(call.Utterances, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("expected windows")
	}
	if windows[0].Start != 0 || windows[0].End != 3 {
		t.Fatalf("unexpected first window: %+v", windows[0])
	}
	// Step is size-overlap, so the second window starts at 3.
	if windows[1].Start != 3 {
		t.Fatalf("expected overlap of 1, second window starts at %d", windows[1].Start)
	}
	last := windows[len(windows)-1]
	if last.End != 9 {
		t.Fatalf("expected final window to reach last utterance, got %+v", last)
	}
}

func TestExtractCall_BuildsEventsWithEvidence(t *testing.T) {
	call := &common.Call{
		ID: "call-1",
		Utterances: []common.Utterance{
			{Seq: 0, Speaker: common.SpeakerAgent, Text: "We missed your delivery window."},
			{Seq: 1, Speaker: common.SpeakerCustomer, Text: "That's why I'm cancelling."},
		},
	}

	fake := &fakeCapability{
		extract: func(prompt string, out any) error {
			res := out.(*windowResponse)
			res.Events = []windowEvent{
				{EventType: "service_failure", Description: "The delivery window was missed.", EvidenceStart: 0, EvidenceEnd: 0, Confidence: 0.9},
				{EventType: "cancellation_intent", Description: "The customer stated intent to cancel.", EvidenceStart: 1, EvidenceEnd: 1, Confidence: 0.85},
			}
			return nil
		},
	}

	x := NewExtractor(fake, testConfig())
	res, err := x.ExtractCall(context.Background(), call, "pass-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}
	for _, e := range res.Events {
		if len(e.Evidence) == 0 {
			t.Fatalf("event %s has no evidence", e.ID)
		}
		if e.PassID != "pass-1" {
			t.Fatalf("event missing pass id: %+v", e)
		}
	}
	if res.Events[0].Ordinal > res.Events[1].Ordinal {
		t.Fatal("events not ordered by ordinal")
	}
	if res.Events[0].Evidence[0].Quote != "We missed your delivery window." {
		t.Fatalf("quote must match utterance text exactly, got %q", res.Events[0].Evidence[0].Quote)
	}
}

func TestExtractCall_RetriesThenSucceeds(t *testing.T) {
	call := testCall(3)
	fake := &fakeCapability{
		fail: 1,
		extract: func(prompt string, out any) error {
			res := out.(*windowResponse)
			res.Events = []windowEvent{
				{EventType: "complaint_raised", Description: "A complaint was raised.", EvidenceStart: 0, EvidenceEnd: 1, Confidence: 0.6},
			}
			return nil
		},
	}

	x := NewExtractor(fake, testConfig())
	res, err := x.ExtractCall(context.Background(), call, "pass-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected 1 event after retry, got %d", len(res.Events))
	}
	if len(res.Unanalyzed) != 0 {
		t.Fatalf("expected no unanalyzed windows, got %d", len(res.Unanalyzed))
	}
}

func TestExtractCall_PersistentFailureDegradesWindow(t *testing.T) {
	call := testCall(3)
	fake := &fakeCapability{
		fail: 1000,
		extract: func(prompt string, out any) error {
			return nil
		},
	}

	x := NewExtractor(fake, testConfig())
	res, err := x.ExtractCall(context.Background(), call, "pass-1")
	if err != nil {
		t.Fatalf("persistent window failure must not fail the call, got %v", err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(res.Events))
	}
	if len(res.Unanalyzed) == 0 {
		t.Fatal("expected unanalyzed windows")
	}
}

func TestExtractCall_FlagsLowConfidence(t *testing.T) {
	call := testCall(2)
	fake := &fakeCapability{
		extract: func(prompt string, out any) error {
			res := out.(*windowResponse)
			res.Events = []windowEvent{
				{EventType: "offer_made", Description: "An offer was vaguely implied.", EvidenceStart: 0, EvidenceEnd: 0, Confidence: 0.1},
			}
			return nil
		},
	}

	cfg := testConfig()
	cfg.ConfidenceFloor = 0.3
	x := NewExtractor(fake, cfg)
	res, err := x.ExtractCall(context.Background(), call, "pass-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("low-confidence events must be retained, got %d events", len(res.Events))
	}
	if !res.Events[0].LowConfidence {
		t.Fatal("expected low-confidence flag")
	}
}

func TestExtractCall_RejectsOutOfRangeEvidence(t *testing.T) {
	call := testCall(2)
	fake := &fakeCapability{
		extract: func(prompt string, out any) error {
			res := out.(*windowResponse)
			res.Events = []windowEvent{
				{EventType: "offer_made", Description: "Fabricated evidence.", EvidenceStart: 40, EvidenceEnd: 41, Confidence: 0.9},
			}
			return nil
		},
	}

	x := NewExtractor(fake, testConfig())
	res, err := x.ExtractCall(context.Background(), call, "pass-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("expected candidate with out-of-call evidence to be dropped, got %d", len(res.Events))
	}
}

func TestMergeDuplicates_MergesOverlappingNearDuplicates(t *testing.T) {
	events := []common.Event{
		{
			ID: "e1", CallID: "c", Type: "complaint_raised", Ordinal: 2, Confidence: 0.6,
			Description: "The customer complained about a late delivery.",
			Evidence:    []common.EvidenceSpan{{ID: "s1", CallID: "c", Start: 2, End: 3, Quote: "q"}},
		},
		{
			ID: "e2", CallID: "c", Type: "complaint_raised", Ordinal: 3, Confidence: 0.8,
			Description: "The customer complained about the late delivery.",
			Evidence:    []common.EvidenceSpan{{ID: "s2", CallID: "c", Start: 3, End: 4, Quote: "q"}},
		},
	}

	merged := MergeDuplicates(events, 0.7)
	if len(merged) != 1 {
		t.Fatalf("expected merge, got %d events", len(merged))
	}
	if merged[0].Confidence != 0.8 {
		t.Fatalf("expected max confidence kept, got %f", merged[0].Confidence)
	}
	if len(merged[0].Evidence) != 2 {
		t.Fatalf("expected evidence union, got %d spans", len(merged[0].Evidence))
	}
}

func TestMergeDuplicates_KeepsDistantEvents(t *testing.T) {
	events := []common.Event{
		{
			ID: "e1", CallID: "c", Type: "complaint_raised", Ordinal: 0, Confidence: 0.6,
			Description: "The customer complained about a late delivery.",
			Evidence:    []common.EvidenceSpan{{ID: "s1", CallID: "c", Start: 0, End: 1}},
		},
		{
			ID: "e2", CallID: "c", Type: "complaint_raised", Ordinal: 20, Confidence: 0.7,
			Description: "The customer complained about a late delivery.",
			Evidence:    []common.EvidenceSpan{{ID: "s2", CallID: "c", Start: 20, End: 21}},
		},
	}

	merged := MergeDuplicates(events, 0.7)
	if len(merged) != 2 {
		t.Fatalf("distant evidence must not merge, got %d events", len(merged))
	}
}
