package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/causeway/internal/queue"
	"github.com/OFFIS-RIT/causeway/internal/server/middleware"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

type reanalyzeResponse struct {
	Message string `json:"message"`
	CallID  string `json:"call_id,omitempty"`
	PassID  string `json:"pass_id,omitempty"`
}

// ReanalyzeCallHandler starts a fresh extraction pass over an existing
// call. Prior passes stay readable until the new one commits, and are
// never deleted afterwards.
func ReanalyzeCallHandler(c echo.Context) error {
	callID := c.Param("id")
	if callID == "" {
		return c.JSON(http.StatusBadRequest, reanalyzeResponse{Message: "Call id is required"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	store := graphstore.NewGraphDBStore(app.DBConn)

	call, err := store.GetCall(ctx, callID)
	if err != nil {
		logger.Error("[Server] Failed to load call", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, reanalyzeResponse{Message: "Internal server error"})
	}
	if call == nil {
		return c.JSON(http.StatusNotFound, reanalyzeResponse{Message: "Call not found"})
	}

	pass, err := store.CreatePass(ctx, callID)
	if err != nil {
		logger.Error("[Server] Failed to create pass", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, reanalyzeResponse{Message: "Internal server error"})
	}

	if err := queue.PublishExtract(app.Queue, queue.ExtractCallMsg{CallID: callID, PassID: pass.ID}); err != nil {
		logger.Error("[Server] Failed to enqueue extraction", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, reanalyzeResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusAccepted, reanalyzeResponse{
		Message: "Re-analysis enqueued",
		CallID:  callID,
		PassID:  pass.ID,
	})
}
