package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/ai"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
)

// Extractor turns a call's utterances into candidate events with evidence
// spans, using the external extraction capability per window.
type Extractor struct {
	client  ai.CapabilityClient
	cfg     Config
	limiter *rate.Limiter
}

// NewExtractor creates an Extractor. The rate limiter is shared across
// all calls processed by this instance.
func NewExtractor(client ai.CapabilityClient, cfg Config) *Extractor {
	return &Extractor{
		client:  client,
		cfg:     cfg,
		limiter: cfg.limiter(),
	}
}

// Result is the outcome of one extraction pass over a call. Unanalyzed
// lists windows whose capability calls failed persistently; those windows
// degrade rather than aborting the call.
type Result struct {
	Events     []common.Event
	Unanalyzed []common.Window
}

type windowEvent struct {
	EventType     string  `json:"type" jsonschema_description:"Event type, snake_case"`
	Description   string  `json:"description" jsonschema_description:"One-sentence canonical description in neutral past tense"`
	EvidenceStart int     `json:"evidence_start" jsonschema_description:"First turn number evidencing the event (inclusive)"`
	EvidenceEnd   int     `json:"evidence_end" jsonschema_description:"Last turn number evidencing the event (inclusive)"`
	Confidence    float64 `json:"confidence" jsonschema_description:"How clearly the text supports the event, 0 to 1"`
}

type windowResponse struct {
	Events []windowEvent `json:"events" jsonschema_description:"Events identified in the transcript window"`
}

// ExtractCall runs windowed extraction over the whole call. Windows run
// concurrently up to cfg.ParallelWindows; each window's capability call
// is retried with backoff, and persistent failure degrades the window to
// unanalyzed instead of failing the call.
func (x *Extractor) ExtractCall(ctx context.Context, call *common.Call, passID string) (*Result, error) {
	windows, err := BuildWindows(call.Utterances, x.cfg)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return &Result{}, nil
	}

	logger.Debug("[Extract] Processing call", "call_id", call.ID, "windows", len(windows))

	var mu sync.Mutex
	var events []common.Event
	var unanalyzed []common.Window

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(x.cfg.ParallelWindows)

	for _, w := range windows {
		window := w
		eg.Go(func() error {
			windowEvents, err := x.extractWindow(gCtx, call, passID, window)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Warn("[Extract] Window degraded to unanalyzed",
					"call_id", call.ID, "start", window.Start, "end", window.End, "err", err)
				unanalyzed = append(unanalyzed, window)
				return nil
			}
			events = append(events, windowEvents...)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := MergeDuplicates(events, x.cfg.DedupeSimilarity)
	for i := range merged {
		if merged[i].Confidence < x.cfg.ConfidenceFloor {
			merged[i].LowConfidence = true
		}
	}

	return &Result{Events: merged, Unanalyzed: unanalyzed}, nil
}

func (x *Extractor) extractWindow(ctx context.Context, call *common.Call, passID string, w common.Window) ([]common.Event, error) {
	types := strings.Join(common.WellKnownEventTypes, ", ")
	systemPrompt := fmt.Sprintf(ai.ExtractEventsPrompt, call.ID, types, types)
	windowText := RenderWindow(call.Utterances, w)

	res, err := util.RetryWithBackoff(ctx, x.cfg.MaxRetries, 500*time.Millisecond,
		func(ctx context.Context) (windowResponse, error) {
			if err := x.limiter.Wait(ctx); err != nil {
				return windowResponse{}, err
			}
			var out windowResponse
			err := x.client.ExtractStructured(
				ctx,
				"extract_call_events",
				"Extract discrete events from a window of call-center transcript turns.",
				windowText,
				&out,
				ai.WithSystemPrompts(systemPrompt),
			)
			return out, err
		})
	if err != nil {
		return nil, &common.CapabilityUnavailableError{Capability: "extract", Err: err}
	}

	events := make([]common.Event, 0, len(res.Events))
	for _, we := range res.Events {
		event, err := x.buildEvent(call, passID, w, we)
		if err != nil {
			logger.Debug("[Extract] Dropping invalid candidate", "call_id", call.ID, "err", err)
			continue
		}
		events = append(events, *event)
	}
	return events, nil
}

// buildEvent validates a candidate against the window and materializes
// the evidence span with the exact quoted text. Candidates referencing
// turns outside the call are rejected, not clamped silently past the
// window bounds.
func (x *Extractor) buildEvent(call *common.Call, passID string, w common.Window, we windowEvent) (*common.Event, error) {
	start, end := we.EvidenceStart, we.EvidenceEnd
	if end < start {
		start, end = end, start
	}
	if start < 0 || end >= len(call.Utterances) {
		return nil, fmt.Errorf("evidence range [%d,%d] outside call", start, end)
	}
	if start < w.Start || end > w.End {
		// Models sometimes cite a neighbor turn from the overlap region;
		// clamp to the window rather than reject.
		start = util.Max(start, w.Start)
		end = util.Min(end, w.End)
		if end < start {
			return nil, fmt.Errorf("evidence range [%d,%d] outside window", we.EvidenceStart, we.EvidenceEnd)
		}
	}

	desc := strings.TrimSpace(we.Description)
	if desc == "" {
		return nil, fmt.Errorf("empty description")
	}
	eventType := normalizeType(we.EventType)
	if eventType == "" {
		return nil, fmt.Errorf("empty event type")
	}

	eID, err := util.NewID()
	if err != nil {
		return nil, err
	}
	sID, err := util.NewID()
	if err != nil {
		return nil, err
	}

	return &common.Event{
		ID:          eID,
		CallID:      call.ID,
		PassID:      passID,
		Type:        eventType,
		Description: desc,
		Ordinal:     start,
		Confidence:  util.Clamp01(we.Confidence),
		Evidence: []common.EvidenceSpan{{
			ID:     sID,
			CallID: call.ID,
			Start:  start,
			End:    end,
			Quote:  QuoteRange(call.Utterances, start, end),
		}},
	}, nil
}

// QuoteRange joins the exact utterance texts of an inclusive range. This
// is the only way quote text is ever produced, so evidence can always be
// re-derived from the call.
func QuoteRange(utterances []common.Utterance, start, end int) string {
	var parts []string
	for i := start; i <= end && i < len(utterances); i++ {
		parts = append(parts, utterances[i].Text)
	}
	return strings.Join(parts, " ")
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, " ", "_")
	t = strings.ReplaceAll(t, "-", "_")
	return strings.Trim(t, "_")
}
