package index

import (
	"strings"
	"testing"
)

func TestFuseRanks_AgreementWins(t *testing.T) {
	lexical := []rankedID{{ID: "a", Rank: 0}, {ID: "b", Rank: 1}}
	vector := []rankedID{{ID: "a", Rank: 1}, {ID: "c", Rank: 0}}

	fused := FuseRanks(lexical, vector, 0.5)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused ids, got %d", len(fused))
	}
	if fused[0].ID != "a" {
		t.Fatalf("expected id present on both sides to rank first, got %q", fused[0].ID)
	}
}

func TestFuseRanks_SortedNonIncreasing(t *testing.T) {
	lexical := []rankedID{{ID: "a", Rank: 0}, {ID: "b", Rank: 1}, {ID: "c", Rank: 2}}
	vector := []rankedID{{ID: "c", Rank: 0}, {ID: "d", Rank: 1}}

	fused := FuseRanks(lexical, vector, 0.4)
	for i := 1; i < len(fused); i++ {
		if fused[i].Score > fused[i-1].Score {
			t.Fatalf("scores not non-increasing at %d: %f > %f", i, fused[i].Score, fused[i-1].Score)
		}
	}
}

func TestFuseRanks_WeightExtremes(t *testing.T) {
	lexical := []rankedID{{ID: "lex", Rank: 0}}
	vector := []rankedID{{ID: "vec", Rank: 0}}

	fused := FuseRanks(lexical, vector, 1.0)
	if fused[0].ID != "lex" {
		t.Fatalf("lexical-only blend should rank lexical first, got %q", fused[0].ID)
	}

	fused = FuseRanks(lexical, vector, 0.0)
	if fused[0].ID != "vec" {
		t.Fatalf("vector-only blend should rank vector first, got %q", fused[0].ID)
	}
}

func TestFuseRanks_ClampsWeight(t *testing.T) {
	lexical := []rankedID{{ID: "a", Rank: 0}}
	fused := FuseRanks(lexical, nil, 3.0)
	if len(fused) != 1 || fused[0].Score <= 0 {
		t.Fatalf("unexpected fusion result: %+v", fused)
	}
}

func TestBuildFilterClause_DefaultsToLatestCommittedPass(t *testing.T) {
	// Without a pass pin, candidates must come from each call's latest
	// committed pass only; otherwise every reanalysis leaves near-duplicate
	// spans that crowd current evidence out of the top-k.
	where, args := buildFilterClause(Filters{CallID: "call-1"})
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if !strings.Contains(where, "ep.status = 'committed'") {
		t.Fatalf("committed-pass restriction missing: %s", where)
	}
	if !strings.Contains(where, "DISTINCT ON (call_id)") {
		t.Fatalf("latest-pass restriction missing: %s", where)
	}
}

func TestBuildFilterClause_PassPinSearchesThatPass(t *testing.T) {
	where, args := buildFilterClause(Filters{PassID: "pass-1"})
	if len(args) != 1 || args[0] != "pass-1" {
		t.Fatalf("expected pass id arg, got %+v", args)
	}
	if !strings.Contains(where, "ei.pass_id = $1") {
		t.Fatalf("pass pin missing: %s", where)
	}
	if strings.Contains(where, "DISTINCT ON (call_id)") {
		t.Fatalf("pinned search must not be restricted to latest pass: %s", where)
	}
}

func TestCandidateLimit_Bounds(t *testing.T) {
	if got := candidateLimit(0); got != 60 {
		t.Fatalf("candidateLimit(0) = %d, want 60", got)
	}
	if got := candidateLimit(1); got != 40 {
		t.Fatalf("candidateLimit(1) = %d, want 40", got)
	}
	if got := candidateLimit(100); got != 240 {
		t.Fatalf("candidateLimit(100) = %d, want 240", got)
	}
}
