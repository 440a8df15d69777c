package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/portal-api/internal/service"
	appErrors "github.com/campuslink/portal-api/pkg/errors"
	"github.com/campuslink/portal-api/pkg/response"
)

// SearchHandler exposes the semantic search endpoint.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler constructs handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search runs a natural-language query against the event vectors.
func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "q is required"))
		return
	}

	k := 10
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "k must be an integer between 1 and 100"))
			return
		}
		k = parsed
	}

	results, err := h.search.Search(c.Request.Context(), query, k)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil, map[string]interface{}{"query": query, "k": k})
}
