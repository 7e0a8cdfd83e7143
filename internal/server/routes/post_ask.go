package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/causeway/internal/server/middleware"
	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/answer"
	"github.com/OFFIS-RIT/causeway/pkg/common"
	"github.com/OFFIS-RIT/causeway/pkg/index"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	"github.com/OFFIS-RIT/causeway/pkg/query"
	graphstore "github.com/OFFIS-RIT/causeway/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

type askBody struct {
	Question string        `json:"question" validate:"required"`
	Scope    *common.Scope `json:"scope"`
}

type askResponse struct {
	Message  string         `json:"message,omitempty"`
	Guidance string         `json:"guidance,omitempty"`
	Answer   *common.Answer `json:"answer,omitempty"`
}

// AskHandler resolves a causal question against committed graphs and
// returns an answer with citations and follow-ups. A question no
// subgraph supports yields an explicitly low-confidence answer, never a
// fabricated one; a question with no event intent is a 422.
func AskHandler(c echo.Context) error {
	data := new(askBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, askResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, askResponse{Message: "Invalid request body"})
	}
	scope := common.Scope{}
	if data.Scope != nil {
		scope = *data.Scope
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	store := graphstore.NewGraphDBStore(app.DBConn)
	lexWeight := util.GetEnvNumeric("INDEX_LEX_WEIGHT", 0.5)
	evidenceIndex := index.NewPGEvidenceIndex(app.DBConn, lexWeight)

	resolver := query.NewResolver(app.AiClient, store, evidenceIndex, query.ConfigFromEnv())
	resolution, err := resolver.Resolve(ctx, data.Question, scope)
	if err != nil {
		var unresolvable *common.UnresolvableQueryError
		if errors.As(err, &unresolvable) {
			return c.JSON(http.StatusUnprocessableEntity, askResponse{
				Message:  "Question intent not recognized",
				Guidance: unresolvable.Guidance,
			})
		}
		var unavailable *common.CapabilityUnavailableError
		if errors.As(err, &unavailable) {
			logger.Error("[Server] Capability unavailable", "capability", unavailable.Capability, "err", err)
			return c.JSON(http.StatusServiceUnavailable, askResponse{Message: "Language capability unavailable, try again later"})
		}
		logger.Error("[Server] Failed to resolve question", "err", err)
		return c.JSON(http.StatusInternalServerError, askResponse{Message: "Internal server error"})
	}

	generator := answer.NewGenerator(app.AiClient, answer.ConfigFromEnv())
	result, err := generator.Generate(ctx, resolution)
	if err != nil {
		logger.Error("[Server] Failed to generate answer", "err", err)
		return c.JSON(http.StatusInternalServerError, askResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, askResponse{Answer: result})
}
