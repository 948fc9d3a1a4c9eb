package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type availabilityChecker interface {
	Check(ctx context.Context, query models.AvailabilityQuery) (*models.AvailabilityResult, error)
}

// AvailabilityHandler answers whether venues, faculty and trainers are free.
type AvailabilityHandler struct {
	service availabilityChecker
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Venue godoc
// @Summary Check venue availability
// @Tags Availability
// @Produce json
// @Param resourceId path string true "Venue ID"
// @Param day query string true "Weekday"
// @Param start_time query string true "HH:MM"
// @Param end_time query string true "HH:MM"
// @Param exclude_timetable_id query string false "Timetable to ignore"
// @Success 200 {object} response.Envelope
// @Router /availability/venues/{resourceId} [get]
func (h *AvailabilityHandler) Venue(c *gin.Context) {
	h.check(c, models.ResourceVenue)
}

// Faculty godoc
// @Summary Check faculty availability
// @Tags Availability
// @Produce json
// @Param resourceId path string true "Faculty ID"
// @Param day query string true "Weekday"
// @Param start_time query string true "HH:MM"
// @Param end_time query string true "HH:MM"
// @Param exclude_timetable_id query string false "Timetable to ignore"
// @Success 200 {object} response.Envelope
// @Router /availability/faculty/{resourceId} [get]
func (h *AvailabilityHandler) Faculty(c *gin.Context) {
	h.check(c, models.ResourceFaculty)
}

// Trainer godoc
// @Summary Check trainer availability
// @Tags Availability
// @Produce json
// @Param resourceId path string true "Trainer ID"
// @Param day query string true "Weekday"
// @Param start_time query string true "HH:MM"
// @Param end_time query string true "HH:MM"
// @Param exclude_timetable_id query string false "Timetable to ignore"
// @Success 200 {object} response.Envelope
// @Router /availability/trainers/{resourceId} [get]
func (h *AvailabilityHandler) Trainer(c *gin.Context) {
	h.check(c, models.ResourceTrainer)
}

func (h *AvailabilityHandler) check(c *gin.Context, kind models.ResourceKind) {
	var req dto.AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability query"))
		return
	}
	query, err := toAvailabilityQuery(kind, c.Param("resourceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Check(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func toAvailabilityQuery(kind models.ResourceKind, resourceID string, req dto.AvailabilityRequest) (models.AvailabilityQuery, error) {
	day, err := models.ParseWeekday(req.Day)
	if err != nil {
		return models.AvailabilityQuery{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid day")
	}
	start, err := models.ParseClockTime(req.StartTime)
	if err != nil {
		return models.AvailabilityQuery{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid start_time")
	}
	end, err := models.ParseClockTime(req.EndTime)
	if err != nil {
		return models.AvailabilityQuery{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid end_time")
	}
	return models.AvailabilityQuery{
		Kind:               kind,
		ResourceID:         resourceID,
		Day:                day,
		Start:              start,
		End:                end,
		ExcludeTimetableID: req.ExcludeTimetableID,
	}, nil
}
