package common

import "time"

// Speaker roles for utterances. Transcripts may carry arbitrary speaker
// labels; the segmenter normalizes them onto these roles.
const (
	SpeakerAgent    = "agent"
	SpeakerCustomer = "customer"
	SpeakerSystem   = "system"
	SpeakerUnknown  = "unknown"
)

// Well-known event types. The taxonomy is open: extraction may emit any
// type string, but ranking gives these a known prior.
const (
	EventComplaintRaised     = "complaint_raised"
	EventServiceFailure      = "service_failure"
	EventOfferMade           = "offer_made"
	EventCancellationIntent  = "cancellation_intent"
	EventResolutionProvided  = "resolution_provided"
	EventEscalationRequested = "escalation_requested"
	EventCommitmentMade      = "commitment_made"
)

// WellKnownEventTypes lists the closed set of event types that ranking
// logic understands. Unknown types are legal and rank with a neutral prior.
var WellKnownEventTypes = []string{
	EventComplaintRaised,
	EventServiceFailure,
	EventOfferMade,
	EventCancellationIntent,
	EventResolutionProvided,
	EventEscalationRequested,
	EventCommitmentMade,
}

// Relation kinds for causal links, derived from the class of the textual
// cue that suggested the relation.
const (
	RelationTriggering   = "triggering"
	RelationEnabling     = "enabling"
	RelationContributing = "contributing"
)

// Pass statuses. Only committed passes are visible to queries.
const (
	PassPending   = "pending"
	PassRunning   = "running"
	PassCommitted = "committed"
	PassFailed    = "failed"
)

// Call is one ingested transcript. Calls and their utterances are
// immutable once ingested; extraction output hangs off passes instead.
type Call struct {
	ID         string       `json:"id"`
	Utterances []Utterance  `json:"utterances"`
	Metadata   CallMetadata `json:"metadata"`
	Degraded   bool         `json:"degraded"`
	IngestedAt time.Time    `json:"ingested_at"`
}

// CallMetadata carries channel/identity attributes used for scoping and
// cross-call linking. CustomerID is the shared-entity key for cross-call
// causal links.
type CallMetadata struct {
	Channel     string  `json:"channel,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	CustomerID  string  `json:"customer_id,omitempty"`
	AccountID   string  `json:"account_id,omitempty"`
}

// Utterance is one speaker turn. Seq is the authoritative ordering;
// start/end seconds are optional and come from the transcription layer.
type Utterance struct {
	Seq      int     `json:"seq"`
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec,omitempty"`
	EndSec   float64 `json:"end_sec,omitempty"`
}

// ExtractionPass is one versioned extraction run over a call. Re-analysis
// creates a new pass; prior passes are never mutated or deleted, so
// historical answers remain reproducible.
type ExtractionPass struct {
	ID          string     `json:"id"`
	CallID      string     `json:"call_id"`
	Status      string     `json:"status"`
	Unanalyzed  []Window   `json:"unanalyzed,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
}

// Window identifies a contiguous utterance range within a call.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Event is a discrete occurrence inferred from one or more utterances.
//
// Invariants: every event carries at least one evidence span, and Ordinal
// is the sequence number of the first source utterance, so event order is
// consistent with utterance order.
type Event struct {
	ID            string         `json:"id"`
	CallID        string         `json:"call_id"`
	PassID        string         `json:"pass_id"`
	Type          string         `json:"type"`
	Description   string         `json:"description"`
	Ordinal       int            `json:"ordinal"`
	Confidence    float64        `json:"confidence"`
	LowConfidence bool           `json:"low_confidence"`
	Evidence      []EvidenceSpan `json:"evidence"`
}

// EvidenceSpan is a back-reference into a call's utterances plus the
// literal quoted text. Evidence never owns text independently of the call:
// the quote must equal the joined text of the referenced range.
type EvidenceSpan struct {
	ID     string `json:"id"`
	CallID string `json:"call_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Quote  string `json:"quote"`
}

// CausalLink is a scored, directed, evidenced relation between two events.
//
// Within a call, cause.Ordinal <= effect.Ordinal always holds. Cross-call
// links additionally record the shared entity that justifies them.
type CausalLink struct {
	ID           string         `json:"id"`
	PassID       string         `json:"pass_id"`
	CauseID      string         `json:"cause_id"`
	EffectID     string         `json:"effect_id"`
	Kind         string         `json:"kind"`
	Strength     float64        `json:"strength"`
	Evidence     []EvidenceSpan `json:"evidence"`
	SharedEntity string         `json:"shared_entity,omitempty"`
}

// CausalGraph is the committed per-call (or merged cross-call) view of
// events and links. Adjacency is id-based; there are no pointer cycles.
type CausalGraph struct {
	CallIDs []string     `json:"call_ids"`
	Events  []Event      `json:"events"`
	Links   []CausalLink `json:"links"`
}

// EventByID returns the event with the given id, or nil.
func (g *CausalGraph) EventByID(id string) *Event {
	for i := range g.Events {
		if g.Events[i].ID == id {
			return &g.Events[i]
		}
	}
	return nil
}

// Scope restricts a query to particular calls, customers, or a time range.
type Scope struct {
	CallID     string     `json:"call_id,omitempty"`
	CustomerID string     `json:"customer_id,omitempty"`
	Speaker    string     `json:"speaker,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
}

// Citation is one resolved evidence reference in an answer: exact call id,
// utterance range, and the quoted text, never a paraphrase.
type Citation struct {
	SpanID string `json:"span_id"`
	CallID string `json:"call_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Quote  string `json:"quote"`
}

// Answer is the result of resolving a causal question: the selected
// subgraph, rendered explanation, ordered citations, and follow-ups.
// Answers are ephemeral; they are not persisted.
type Answer struct {
	Explanation   string             `json:"explanation"`
	Subgraph      CausalGraph        `json:"subgraph"`
	Citations     []Citation         `json:"citations"`
	Confidence    float64            `json:"confidence"`
	LowConfidence bool               `json:"low_confidence"`
	FollowUps     []FollowUpQuestion `json:"follow_ups"`
}

// FollowUpQuestion is a suggested next question anchored to a graph
// element that the answer did not cover.
type FollowUpQuestion struct {
	Text    string `json:"text"`
	EventID string `json:"event_id,omitempty"`
	LinkID  string `json:"link_id,omitempty"`
}
