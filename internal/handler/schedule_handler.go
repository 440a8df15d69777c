package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/portal-api/internal/middleware"
	"github.com/campuslink/portal-api/internal/models"
	"github.com/campuslink/portal-api/internal/service"
	appErrors "github.com/campuslink/portal-api/pkg/errors"
	"github.com/campuslink/portal-api/pkg/response"
)

// ScheduleHandler exposes schedule CRUD, ingestion and export endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// Create accepts JSON or multipart and stores one schedule entry.
func (h *ScheduleHandler) Create(c *gin.Context) {
	body, err := readBody(c, h.schedules.MaxBodyBytes())
	if err != nil {
		response.Error(c, err)
		return
	}

	event, err := h.schedules.CreateFromPayload(c.Request.Context(), c.GetHeader("Content-Type"), body, uploaderFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Get returns one schedule entry by id.
func (h *ScheduleHandler) Get(c *gin.Context) {
	event, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// List returns schedule entries matching the structured filters.
func (h *ScheduleHandler) List(c *gin.Context) {
	req, err := listRequestFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	events, err := h.schedules.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Calendar lists entries restricted to the calendar surface.
func (h *ScheduleHandler) Calendar(c *gin.Context) {
	h.listSurface(c, models.SurfaceCalendar)
}

// Feed lists entries restricted to the feed surface.
func (h *ScheduleHandler) Feed(c *gin.Context) {
	h.listSurface(c, models.SurfaceFeed)
}

func (h *ScheduleHandler) listSurface(c *gin.Context, surface models.Surface) {
	req, err := listRequestFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.Surface = string(surface)
	events, err := h.schedules.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Update merges the provided fields into one schedule entry.
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete removes one schedule entry.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteAll removes every schedule entry. Admin only.
func (h *ScheduleHandler) DeleteAll(c *gin.Context) {
	count, err := h.schedules.DeleteAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": count}, nil)
}

// Upload ingests a CSV spreadsheet of schedule rows.
func (h *ScheduleHandler) Upload(c *gin.Context) {
	body, err := readBody(c, h.schedules.MaxBodyBytes())
	if err != nil {
		response.Error(c, err)
		return
	}

	summary, err := h.schedules.IngestSpreadsheet(c.Request.Context(), c.GetHeader("Content-Type"), body, uploaderFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export renders the filtered schedule as a CSV or PDF download.
func (h *ScheduleHandler) Export(c *gin.Context) {
	req, err := listRequestFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "csv"))

	data, filename, mimeType, err := h.schedules.Export(c.Request.Context(), req, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, mimeType, data)
}

func listRequestFrom(c *gin.Context) (service.ListScheduleRequest, error) {
	req := service.ListScheduleRequest{
		Surface:  c.Query("surface"),
		Semester: c.Query("semester"),
		Audience: c.Query("audience"),
		DateType: c.Query("dateType"),
		ExamOnly: c.Query("examOnly") == "true",
	}
	if raw := c.Query("category"); raw != "" {
		for _, cat := range strings.Split(raw, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				req.Categories = append(req.Categories, cat)
			}
		}
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
		}
		req.StartDate = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
		}
		req.EndDate = &to
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return req, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer")
		}
		req.Limit = limit
	}
	if raw := c.Query("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return req, appErrors.Clone(appErrors.ErrValidation, "skip must be a non-negative integer")
		}
		req.Skip = skip
	}
	return req, nil
}

// readBody buffers the request body subject to the upload size cap. The
// limit is enforced while reading, so an oversized body is rejected
// without ever being held in memory whole.
func readBody(c *gin.Context, limit int64) ([]byte, error) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, appErrors.ErrPayloadTooLarge
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read request body")
	}
	return body, nil
}

func uploaderFrom(c *gin.Context) string {
	if claims := middleware.CurrentUser(c); claims != nil {
		if claims.Email != "" {
			return claims.Email
		}
		return claims.UserID
	}
	return ""
}
