package extract

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/OFFIS-RIT/causeway/pkg/common"
)

// BuildWindows slices a call's utterances into sliding windows of
// cfg.WindowSize with cfg.Overlap shared utterances, splitting further
// when a window exceeds the token cap. Ranges are inclusive.
func BuildWindows(utterances []common.Utterance, cfg Config) ([]common.Window, error) {
	if len(utterances) == 0 {
		return nil, nil
	}

	size := cfg.WindowSize
	if size <= 0 {
		size = 8
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	// The token cap is optional; without it no encoder is needed.
	var enc *tiktoken.Tiktoken
	if cfg.MaxWindowTokens > 0 {
		var err error
		enc, err = tiktoken.GetEncoding(cfg.TokenEncoder)
		if err != nil {
			return nil, err
		}
	}

	var windows []common.Window
	step := size - overlap
	for start := 0; start < len(utterances); start += step {
		end := start + size - 1
		if end >= len(utterances) {
			end = len(utterances) - 1
		}

		windows = append(windows, splitByTokens(utterances, start, end, enc, cfg.MaxWindowTokens)...)

		if end == len(utterances)-1 {
			break
		}
	}
	return windows, nil
}

// splitByTokens cuts [start,end] into pieces that each fit the token cap.
// A single oversized utterance still gets its own window; the capability
// backend gets to deal with it.
func splitByTokens(utterances []common.Utterance, start, end int, enc *tiktoken.Tiktoken, maxTokens int) []common.Window {
	if maxTokens <= 0 || enc == nil {
		return []common.Window{{Start: start, End: end}}
	}

	var out []common.Window
	pieceStart := start
	tokens := 0
	for i := start; i <= end; i++ {
		n := len(enc.Encode(utterances[i].Text, nil, nil)) + 8
		if tokens+n > maxTokens && i > pieceStart {
			out = append(out, common.Window{Start: pieceStart, End: i - 1})
			pieceStart = i
			tokens = 0
		}
		tokens += n
	}
	out = append(out, common.Window{Start: pieceStart, End: end})
	return out
}

// RenderWindow formats a window as numbered speaker turns for the
// extraction prompt. Turn numbers are absolute sequence numbers so the
// model's evidence references map straight back to utterances.
func RenderWindow(utterances []common.Utterance, w common.Window) string {
	var b strings.Builder
	for i := w.Start; i <= w.End && i < len(utterances); i++ {
		u := utterances[i]
		fmt.Fprintf(&b, "[%d] %s: %s\n", u.Seq, u.Speaker, u.Text)
	}
	return b.String()
}
