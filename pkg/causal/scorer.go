package causal

import (
	"context"
	"math"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
)

// Scorer proposes and scores directed causal links between events. It
// combines a lexical-cue signal, an embedding-coherence signal, and a
// temporal-proximity decay, with configurable weights.
type Scorer struct {
	client ai.CapabilityClient
	cfg    Config
}

// NewScorer creates a Scorer.
func NewScorer(client ai.CapabilityClient, cfg Config) *Scorer {
	return &Scorer{client: client, cfg: cfg}
}

// ScoreCall scores all ordered event pairs of one call that fall within
// the configured temporal window. Links below the minimum strength are
// discarded, not stored. The returned links never point back in time:
// cause.Ordinal <= effect.Ordinal by construction.
func (s *Scorer) ScoreCall(ctx context.Context, call *common.Call, passID string, events []common.Event) ([]common.CausalLink, error) {
	if len(events) < 2 {
		return nil, nil
	}

	embeddings, err := s.embedDescriptions(ctx, events)
	if err != nil {
		return nil, err
	}

	var links []common.CausalLink
	for i := range events {
		for j := range events {
			if i == j {
				continue
			}
			cause, effect := &events[i], &events[j]
			if cause.Ordinal > effect.Ordinal {
				continue
			}
			if cause.Ordinal == effect.Ordinal && i > j {
				// Same ordinal: score each unordered pair once.
				continue
			}
			distance := effect.Ordinal - cause.Ordinal
			if s.cfg.MaxPairDistance > 0 && distance > s.cfg.MaxPairDistance {
				continue
			}

			link, err := s.scorePair(ctx, call, passID, cause, effect, embeddings[cause.ID], embeddings[effect.ID])
			if err != nil {
				return nil, err
			}
			if link == nil {
				continue
			}
			links = append(links, *link)
		}
	}

	logger.Debug("[Causal] Scored call", "call_id", call.ID, "events", len(events), "links", len(links))
	return links, nil
}

func (s *Scorer) scorePair(
	ctx context.Context,
	call *common.Call,
	passID string,
	cause, effect *common.Event,
	causeVec, effectVec []float32,
) (*common.CausalLink, error) {
	interStart := cause.Ordinal
	interEnd := lastEvidenceEnd(effect)

	match := findCue(call.Utterances, interStart, interEnd)

	cueSignal := 0.0
	kind := common.RelationContributing
	if match != nil {
		cueSignal = match.cue.weight
		kind = match.cue.kind
	}

	coherence, err := s.coherence(ctx, call, interStart, interEnd, causeVec, effectVec)
	if err != nil {
		return nil, err
	}

	distance := float64(effect.Ordinal - cause.Ordinal)
	tau := s.cfg.ProximityTau
	if tau <= 0 {
		tau = 6
	}
	proximity := math.Exp(-distance / tau)

	w := s.cfg.Weights
	strength := util.Clamp01(w.Cue*cueSignal + w.Coherence*coherence + w.Proximity*proximity)
	if strength < s.cfg.MinStrength {
		return nil, nil
	}

	linkID, err := util.NewID()
	if err != nil {
		return nil, err
	}

	link := &common.CausalLink{
		ID:       linkID,
		PassID:   passID,
		CauseID:  cause.ID,
		EffectID: effect.ID,
		Kind:     kind,
		Strength: strength,
	}

	if match != nil {
		spanID, err := util.NewID()
		if err != nil {
			return nil, err
		}
		link.Evidence = append(link.Evidence, common.EvidenceSpan{
			ID:     spanID,
			CallID: call.ID,
			Start:  match.seq,
			End:    match.seq,
			Quote:  match.snippet,
		})
	}

	return link, nil
}

// coherence averages the cosine similarity of both event descriptions
// against the intervening span. Without an intervening span the two
// descriptions are compared directly.
func (s *Scorer) coherence(ctx context.Context, call *common.Call, start, end int, causeVec, effectVec []float32) (float64, error) {
	if len(causeVec) == 0 || len(effectVec) == 0 {
		return 0, nil
	}

	text := joinRange(call.Utterances, start, end)
	if text == "" {
		return util.Clamp01(Cosine(causeVec, effectVec)), nil
	}

	spanVec, err := s.embed(ctx, text)
	if err != nil {
		return 0, err
	}
	sim := (Cosine(causeVec, spanVec) + Cosine(effectVec, spanVec)) / 2
	return util.Clamp01(sim), nil
}

func (s *Scorer) embedDescriptions(ctx context.Context, events []common.Event) (map[string][]float32, error) {
	out := make(map[string][]float32, len(events))
	for i := range events {
		vec, err := s.embed(ctx, events[i].Description)
		if err != nil {
			return nil, err
		}
		out[events[i].ID] = vec
	}
	return out, nil
}

func (s *Scorer) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := util.RetryWithBackoff(ctx, 3, 500*time.Millisecond,
		func(ctx context.Context) ([]float32, error) {
			return s.client.GenerateEmbedding(ctx, []byte(text))
		})
	if err != nil {
		return nil, &common.CapabilityUnavailableError{Capability: "embed", Err: err}
	}
	return vec, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// zero or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func lastEvidenceEnd(e *common.Event) int {
	end := e.Ordinal
	for _, span := range e.Evidence {
		if span.End > end {
			end = span.End
		}
	}
	return end
}

func joinRange(utterances []common.Utterance, start, end int) string {
	if start < 0 {
		start = 0
	}
	var parts []string
	for i := start; i <= end && i < len(utterances); i++ {
		parts = append(parts, utterances[i].Text)
	}
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}
