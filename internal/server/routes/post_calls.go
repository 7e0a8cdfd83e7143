package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/causeway/internal/queue"
	"github.com/OFFIS-RIT/causeway/internal/server/middleware"
	"github.com/OFFIS-RIT/causeway/internal/storage"
	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	"github.com/OFFIS-RIT/causeway/pkg/segment"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

type ingestTurn struct {
	Speaker  string  `json:"speaker" validate:"required"`
	Text     string  `json:"text" validate:"required"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

type ingestCallBody struct {
	Transcript string              `json:"transcript"`
	Turns      []ingestTurn        `json:"turns" validate:"omitempty,dive"`
	Metadata   common.CallMetadata `json:"metadata"`
}

type ingestCallResponse struct {
	Message  string `json:"message"`
	CallID   string `json:"call_id,omitempty"`
	PassID   string `json:"pass_id,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// IngestCallHandler accepts a transcript (raw text or pre-segmented
// turns), persists the call, archives the raw text, and enqueues the
// first extraction pass. A transcript without detectable speaker turns
// is accepted degraded, not rejected.
func IngestCallHandler(c echo.Context) error {
	data := new(ingestCallBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestCallResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestCallResponse{Message: "Invalid request body"})
	}
	if data.Transcript == "" && len(data.Turns) == 0 {
		return c.JSON(http.StatusBadRequest, ingestCallResponse{Message: "Either transcript or turns is required"})
	}

	callID, err := util.NewID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestCallResponse{Message: "Internal server error"})
	}

	call := &common.Call{
		ID:         callID,
		Metadata:   data.Metadata,
		IngestedAt: time.Now().UTC(),
	}

	if len(data.Turns) > 0 {
		turns := make([]common.Utterance, 0, len(data.Turns))
		for i, t := range data.Turns {
			turns = append(turns, common.Utterance{
				Seq:      i,
				Speaker:  t.Speaker,
				Text:     t.Text,
				StartSec: t.StartSec,
				EndSec:   t.EndSec,
			})
		}
		call.Utterances = segment.FromTurns(turns)
	} else {
		result := segment.Segment(callID, data.Transcript)
		call.Utterances = result.Utterances
		call.Degraded = result.Degraded
		var malformed *common.MalformedTranscriptError
		if errors.As(result.Err, &malformed) {
			logger.Warn("[Server] Transcript segmented degraded", "call_id", callID, "reason", malformed.Reason)
		}
	}
	if len(call.Utterances) == 0 {
		return c.JSON(http.StatusBadRequest, ingestCallResponse{Message: "Transcript contains no usable turns"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if data.Transcript != "" && app.S3 != nil {
		if _, err := storage.ArchiveTranscript(ctx, app.S3, callID, data.Transcript); err != nil {
			logger.Warn("[Server] Failed to archive transcript", "call_id", callID, "err", err)
		}
	}

	store := graphstore.NewGraphDBStore(app.DBConn)
	if err := store.SaveCall(ctx, call); err != nil {
		logger.Error("[Server] Failed to save call", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestCallResponse{Message: "Internal server error"})
	}

	pass, err := store.CreatePass(ctx, callID)
	if err != nil {
		logger.Error("[Server] Failed to create pass", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestCallResponse{Message: "Internal server error"})
	}

	if err := queue.PublishExtract(app.Queue, queue.ExtractCallMsg{CallID: callID, PassID: pass.ID}); err != nil {
		logger.Error("[Server] Failed to enqueue extraction", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, ingestCallResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, ingestCallResponse{
		Message:  "Call accepted for extraction",
		CallID:   callID,
		PassID:   pass.ID,
		Degraded: call.Degraded,
	})
}
