package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/causeway/internal/server/middleware"
	"github.com/OFFIS-RIT/causeway/internal/storage"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

type getTranscriptResponse struct {
	Message string `json:"message,omitempty"`
}

// GetTranscriptHandler returns the archived raw transcript of a call as
// plain text. Calls ingested as pre-segmented turns have no archive.
func GetTranscriptHandler(c echo.Context) error {
	callID := c.Param("id")
	if callID == "" {
		return c.JSON(http.StatusBadRequest, getTranscriptResponse{Message: "Call id is required"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	store := graphstore.NewGraphDBStore(app.DBConn)
	call, err := store.GetCall(ctx, callID)
	if err != nil {
		logger.Error("[Server] Failed to load call", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, getTranscriptResponse{Message: "Internal server error"})
	}
	if call == nil {
		return c.JSON(http.StatusNotFound, getTranscriptResponse{Message: "Call not found"})
	}

	if app.S3 == nil {
		return c.JSON(http.StatusNotFound, getTranscriptResponse{Message: "No transcript archive configured"})
	}
	transcript, err := storage.GetTranscript(ctx, app.S3, callID)
	if err != nil {
		logger.Warn("[Server] No archived transcript", "call_id", callID, "err", err)
		return c.JSON(http.StatusNotFound, getTranscriptResponse{Message: "No archived transcript for this call"})
	}

	return c.String(http.StatusOK, transcript)
}
