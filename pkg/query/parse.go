package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// Causal directions a question can ask for.
const (
	DirectionCauses  = "causes"
	DirectionEffects = "effects"
	DirectionExplain = "explain"
)

// ParsedQuestion is the structured intent of a causal question.
type ParsedQuestion struct {
	Direction   string   `json:"direction"    jsonschema:"enum=causes,enum=effects,enum=explain" jsonschema_description:"Whether the question asks for causes, effects, or a general explanation."`
	EventTypes  []string `json:"event_types"  jsonschema_description:"Event types the question targets, empty when none fits."`
	Keywords    []string `json:"keywords"     jsonschema_description:"Up to 8 concrete search keywords from the question."`
	EventIntent bool     `json:"event_intent" jsonschema_description:"False only when the question contains nothing event-like."`
}

// parse classifies the question with the extraction capability. A
// question with no event-like intent fails with UnresolvableQueryError
// rather than being guessed around.
func (r *Resolver) parse(ctx context.Context, question string) (*ParsedQuestion, error) {
	prompt := fmt.Sprintf(ai.ParseQuestionPrompt, strings.Join(common.WellKnownEventTypes, ", "))
	prompt += "\nQuestion: " + question

	parsed, err := util.RetryWithBackoff(ctx, 3, 500*time.Millisecond,
		func(ctx context.Context) (*ParsedQuestion, error) {
			var out ParsedQuestion
			if err := r.client.ExtractStructured(ctx, "question_intent",
				"Structured intent of a causal question about call transcripts", prompt, &out); err != nil {
				return nil, err
			}
			return &out, nil
		})
	if err != nil {
		return nil, &common.CapabilityUnavailableError{Capability: "parse", Err: err}
	}

	if !parsed.EventIntent {
		return nil, &common.UnresolvableQueryError{
			Question: question,
			Guidance: "ask about something that happened in a call, e.g. \"why did the customer cancel?\"",
		}
	}
	switch parsed.Direction {
	case DirectionCauses, DirectionEffects, DirectionExplain:
	default:
		parsed.Direction = DirectionExplain
	}
	return parsed, nil
}

// searchText builds the retrieval query from parsed keywords, falling
// back to the raw question.
func searchText(question string, parsed *ParsedQuestion) string {
	if len(parsed.Keywords) > 0 {
		return strings.Join(parsed.Keywords, " ")
	}
	return question
}
