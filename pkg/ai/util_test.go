package ai

import "testing"

type sampleOut struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestUnmarshalFlexible_StandardJSON(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible(`{"name": "refund", "score": 0.8}`, &out); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out.Name != "refund" || out.Score != 0.8 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_DoubleEncoded(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible(`"{\"name\": \"refund\", \"score\": 0.5}"`, &out); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out.Name != "refund" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_CodeFenceAndRepair(t *testing.T) {
	var out sampleOut
	input := "```json\n{name: \"refund\", score: 0.7,}\n```"
	if err := UnmarshalFlexible(input, &out); err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if out.Name != "refund" || out.Score != 0.7 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_Garbage(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible("not json at all {{{", &out); err == nil {
		t.Fatal("expected error for unrepairable input")
	}
}
