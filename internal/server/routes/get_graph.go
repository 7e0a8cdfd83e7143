package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/causeway/internal/server/middleware"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

type getGraphResponse struct {
	Message string              `json:"message,omitempty"`
	PassID  string              `json:"pass_id,omitempty"`
	Graph   *common.CausalGraph `json:"graph,omitempty"`
}

// GetCallGraphHandler returns the committed causal graph of one call. A
// call whose first pass has not committed yet yields an empty graph.
func GetCallGraphHandler(c echo.Context) error {
	callID := c.Param("id")
	if callID == "" {
		return c.JSON(http.StatusBadRequest, getGraphResponse{Message: "Call id is required"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	store := graphstore.NewGraphDBStore(app.DBConn)

	call, err := store.GetCall(ctx, callID)
	if err != nil {
		logger.Error("[Server] Failed to load call", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{Message: "Internal server error"})
	}
	if call == nil {
		return c.JSON(http.StatusNotFound, getGraphResponse{Message: "Call not found"})
	}

	graph, err := store.GetGraph(ctx, callID)
	if err != nil {
		logger.Error("[Server] Failed to load graph", "call_id", callID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{Message: "Internal server error"})
	}

	passID := ""
	if pass, err := store.LatestCommittedPass(ctx, callID); err == nil && pass != nil {
		passID = pass.ID
	}

	return c.JSON(http.StatusOK, getGraphResponse{PassID: passID, Graph: graph})
}
