package segment

import (
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// Result is the outcome of segmenting one transcript. Degraded is set when
// no speaker turns could be delimited and the whole transcript was kept as
// a best-effort single-speaker sequence; Err then carries the
// MalformedTranscriptError for logging and the call record.
type Result struct {
	Utterances []common.Utterance
	Degraded   bool
	Err        error
}

var (
	// "Agent: text" and "Agent 2: text"
	colonTurn = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _.-]{0,31}):\s+(.*)$`)
	// "[Agent] text"
	bracketTurn = regexp.MustCompile(`^\[([A-Za-z][A-Za-z0-9 _.-]{0,31})\]\s*(.*)$`)
	// "AGENT> text"
	chevronTurn = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _.-]{0,31})>\s+(.*)$`)
)

var speakerRoles = map[string]string{
	"agent":          common.SpeakerAgent,
	"rep":            common.SpeakerAgent,
	"representative": common.SpeakerAgent,
	"support":        common.SpeakerAgent,
	"operator":       common.SpeakerAgent,
	"advisor":        common.SpeakerAgent,
	"customer":       common.SpeakerCustomer,
	"caller":         common.SpeakerCustomer,
	"client":         common.SpeakerCustomer,
	"user":           common.SpeakerCustomer,
	"member":         common.SpeakerCustomer,
	"system":         common.SpeakerSystem,
	"ivr":            common.SpeakerSystem,
	"bot":            common.SpeakerSystem,
	"recording":      common.SpeakerSystem,
}

// NormalizeSpeaker maps a raw speaker label onto one of the speaker roles.
// Trailing digits ("Agent 2") are ignored for role detection.
func NormalizeSpeaker(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.TrimRight(l, "0123456789 ")
	if role, ok := speakerRoles[l]; ok {
		return role
	}
	return common.SpeakerUnknown
}

// Segment splits raw transcript text into speaker-attributed utterances.
//
// A line starting a new turn looks like "Speaker: text", "[Speaker] text"
// or "SPEAKER> text"; other non-empty lines continue the current turn.
// When no turn delimiters are found at all, the transcript is degraded to
// a single-speaker utterance per paragraph and Result.Err carries a
// MalformedTranscriptError. The call is never dropped.
func Segment(callID string, raw string) Result {
	lines := strings.Split(raw, "\n")

	var utterances []common.Utterance
	current := -1
	turns := 0

	appendTurn := func(speaker, text string) {
		utterances = append(utterances, common.Utterance{
			Seq:     len(utterances),
			Speaker: speaker,
			Text:    strings.TrimSpace(text),
		})
		current = len(utterances) - 1
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if speaker, text, ok := matchTurn(trimmed); ok {
			appendTurn(speaker, text)
			turns++
			continue
		}

		if current >= 0 {
			utterances[current].Text += " " + trimmed
		} else {
			appendTurn(common.SpeakerUnknown, trimmed)
		}
	}

	if turns == 0 {
		return Result{
			Utterances: degradedUtterances(raw),
			Degraded:   true,
			Err: &common.MalformedTranscriptError{
				CallID: callID,
				Reason: "no speaker turn delimiters found",
			},
		}
	}

	return Result{Utterances: dropEmpty(utterances)}
}

// FromTurns accepts pre-segmented turns from the ingestion payload and
// renumbers them. Turns with empty text are skipped.
func FromTurns(turns []common.Utterance) []common.Utterance {
	out := make([]common.Utterance, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := t.Speaker
		if role != common.SpeakerAgent && role != common.SpeakerCustomer && role != common.SpeakerSystem {
			role = NormalizeSpeaker(t.Speaker)
		}
		out = append(out, common.Utterance{
			Seq:      len(out),
			Speaker:  role,
			Text:     text,
			StartSec: t.StartSec,
			EndSec:   t.EndSec,
		})
	}
	return out
}

func matchTurn(line string) (speaker, text string, ok bool) {
	for _, re := range []*regexp.Regexp{colonTurn, bracketTurn, chevronTurn} {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		role := NormalizeSpeaker(m[1])
		if role == common.SpeakerUnknown && re == colonTurn {
			// "Note: something" is prose, not a turn, unless the label is
			// all-caps or a known short name.
			if m[1] != strings.ToUpper(m[1]) && len(strings.Fields(m[1])) > 2 {
				continue
			}
		}
		return role, m[2], true
	}
	return "", "", false
}

func degradedUtterances(raw string) []common.Utterance {
	paragraphs := strings.Split(raw, "\n")
	var out []common.Utterance
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, common.Utterance{
			Seq:     len(out),
			Speaker: common.SpeakerUnknown,
			Text:    p,
		})
	}
	return out
}

func dropEmpty(in []common.Utterance) []common.Utterance {
	out := make([]common.Utterance, 0, len(in))
	for _, u := range in {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		u.Seq = len(out)
		out = append(out, u)
	}
	return out
}
