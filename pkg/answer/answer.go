package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	"github.com/OFFIS-RIT/causeway/pkg/query"
)

// Generator renders a resolved subgraph into an answer: prose with
// validated [[span-id]] citations, the ordered citation list, and
// follow-up questions from unexplored graph neighbors.
type Generator struct {
	client ai.CapabilityClient
	cfg    Config
}

// Config tunes answer generation.
type Config struct {
	// MaxFollowUps caps the suggested follow-up questions.
	MaxFollowUps int
}

// DefaultConfig returns the defaults used when env overrides are absent.
func DefaultConfig() Config {
	return Config{MaxFollowUps: 3}
}

// ConfigFromEnv reads overrides from the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.MaxFollowUps = util.GetEnvInt("ANSWER_MAX_FOLLOWUPS", cfg.MaxFollowUps)
	return cfg
}

// NewGenerator creates a Generator.
func NewGenerator(client ai.CapabilityClient, cfg Config) *Generator {
	return &Generator{client: client, cfg: cfg}
}

var citationPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// Generate renders the resolution into an Answer. Prose comes from the
// chat capability constrained to the subgraph's evidence; any citation
// the capability invents, or a capability failure, falls back to a
// deterministic template built purely from the subgraph, so the answer
// is never fabricated.
func (g *Generator) Generate(ctx context.Context, res *query.Resolution) (*common.Answer, error) {
	answer := &common.Answer{
		Subgraph:      res.Subgraph,
		Confidence:    res.Confidence,
		LowConfidence: res.LowConfidence,
	}

	spans := spansByID(&res.Subgraph)

	if len(res.Subgraph.Events) == 0 {
		answer.Explanation = "No committed evidence supports an answer to this question. " +
			"The relevant calls may not be analyzed yet, or the question may be out of scope."
		return answer, nil
	}

	explanation, err := g.explain(ctx, res)
	if err != nil || !citationsValid(explanation, spans) {
		if err != nil {
			logger.Warn("[Answer] Falling back to template", "error", err)
		} else {
			logger.Warn("[Answer] Capability cited unknown spans, falling back to template")
		}
		explanation = renderTemplate(res)
	}
	answer.Explanation = explanation
	answer.Citations = resolveCitations(explanation, spans)

	answer.FollowUps = g.followUps(res)
	return answer, nil
}

func (g *Generator) explain(ctx context.Context, res *query.Resolution) (string, error) {
	prompt := fmt.Sprintf(ai.ExplainPrompt, renderContext(&res.Subgraph), res.Question)
	text, err := util.RetryWithBackoff(ctx, 3, 500*time.Millisecond,
		func(ctx context.Context) (string, error) {
			return g.client.GenerateCompletion(ctx, prompt)
		})
	if err != nil {
		return "", &common.CapabilityUnavailableError{Capability: "explain", Err: err}
	}
	return strings.TrimSpace(text), nil
}

// renderContext formats the subgraph as the background block of the
// explain prompt: events with their evidence, then scored links.
func renderContext(sub *common.CausalGraph) string {
	var b strings.Builder

	b.WriteString("## Events\n")
	for i := range sub.Events {
		e := &sub.Events[i]
		fmt.Fprintf(&b, "- %s (%s, confidence %.2f): %s\n", e.ID, e.Type, e.Confidence, e.Description)
		for _, span := range e.Evidence {
			fmt.Fprintf(&b, "  [[%s]] call %s turns %d-%d: %q\n", span.ID, span.CallID, span.Start, span.End, span.Quote)
		}
	}

	b.WriteString("\n## Causal links\n")
	for i := range sub.Links {
		link := &sub.Links[i]
		fmt.Fprintf(&b, "- %s -> %s (%s, strength %.2f)", link.CauseID, link.EffectID, link.Kind, link.Strength)
		if link.SharedEntity != "" {
			fmt.Fprintf(&b, " shared %s", link.SharedEntity)
		}
		b.WriteString("\n")
		for _, span := range link.Evidence {
			fmt.Fprintf(&b, "  [[%s]] call %s turns %d-%d: %q\n", span.ID, span.CallID, span.Start, span.End, span.Quote)
		}
	}
	return b.String()
}

// renderTemplate is the deterministic fallback: the causal chain in call
// order, every claim cited.
func renderTemplate(res *query.Resolution) string {
	sub := &res.Subgraph
	events := map[string]*common.Event{}
	for i := range sub.Events {
		events[sub.Events[i].ID] = &sub.Events[i]
	}

	var b strings.Builder
	if len(sub.Links) == 0 {
		b.WriteString("The evidence shows the following, without a clear causal chain: ")
		for i := range sub.Events {
			if i > 0 {
				b.WriteString(" ")
			}
			e := &sub.Events[i]
			fmt.Fprintf(&b, "%s%s.", upperFirst(e.Description), citeAll(e.Evidence))
		}
		return b.String()
	}

	for i := range sub.Links {
		link := &sub.Links[i]
		cause, effect := events[link.CauseID], events[link.EffectID]
		if cause == nil || effect == nil {
			continue
		}
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s%s %s %s%s.",
			upperFirst(cause.Description), citeAll(cause.Evidence),
			kindVerb(link.Kind),
			effect.Description, citeAll(append(effect.Evidence, link.Evidence...)))
	}
	if res.LowConfidence {
		b.WriteString(" The evidence for this chain is weak.")
	}
	return b.String()
}

func kindVerb(kind string) string {
	switch kind {
	case common.RelationTriggering:
		return "triggered"
	case common.RelationEnabling:
		return "enabled"
	default:
		return "contributed to"
	}
}

func citeAll(spans []common.EvidenceSpan) string {
	var b strings.Builder
	for _, span := range spans {
		fmt.Fprintf(&b, " [[%s]]", span.ID)
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func spansByID(sub *common.CausalGraph) map[string]common.EvidenceSpan {
	spans := map[string]common.EvidenceSpan{}
	for i := range sub.Events {
		for _, span := range sub.Events[i].Evidence {
			spans[span.ID] = span
		}
	}
	for i := range sub.Links {
		for _, span := range sub.Links[i].Evidence {
			spans[span.ID] = span
		}
	}
	return spans
}

// citationsValid reports whether every [[span-id]] marker in the text
// refers to a span of the subgraph, and at least one citation exists.
func citationsValid(text string, spans map[string]common.EvidenceSpan) bool {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if _, ok := spans[m[1]]; !ok {
			return false
		}
	}
	return true
}

// resolveCitations returns the cited spans in order of first appearance.
func resolveCitations(text string, spans map[string]common.EvidenceSpan) []common.Citation {
	var citations []common.Citation
	seen := map[string]bool{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		span, ok := spans[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		citations = append(citations, common.Citation{
			SpanID: span.ID,
			CallID: span.CallID,
			Start:  span.Start,
			End:    span.End,
			Quote:  span.Quote,
		})
	}
	return citations
}
