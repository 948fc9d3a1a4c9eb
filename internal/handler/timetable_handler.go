package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type timetableManager interface {
	Create(ctx context.Context, req dto.CreateTimetableRequest, actor string) (*models.Timetable, error)
	Get(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error)
	Update(ctx context.Context, id string, req dto.UpdateTimetableRequest, actor string) (*models.Timetable, error)
	Delete(ctx context.Context, id string, version int, actor string) error
	AddSlot(ctx context.Context, id string, req dto.AddSlotRequest, actor string) (*models.Timetable, error)
	RemoveSlot(ctx context.Context, id string, req dto.RemoveSlotRequest, actor string) (*models.Timetable, error)
	ListConflicts(ctx context.Context, id string, unresolvedOnly bool) ([]models.Conflict, error)
	ResolveConflict(ctx context.Context, id, conflictID string, req dto.ResolveConflictRequest, actor string) (*models.Conflict, error)
	Publish(ctx context.Context, id string, req dto.VersionRequest, actor string) (*models.Timetable, error)
	Archive(ctx context.Context, id string, req dto.VersionRequest, actor string) (*models.Timetable, error)
}

type timetableExporter interface {
	Export(ctx context.Context, id string, format service.ExportFormat) (*service.ExportFile, error)
}

type auditHistory interface {
	History(ctx context.Context, timetableID string, limit int) ([]models.AuditLog, error)
}

const defaultHistoryLimit = 50

// TimetableHandler exposes timetable lifecycle endpoints.
type TimetableHandler struct {
	service  timetableManager
	exporter timetableExporter
	history  auditHistory
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService, exporter *service.ExportService, audit *service.AuditService) *TimetableHandler {
	return &TimetableHandler{service: svc, exporter: exporter, history: audit}
}

// Create godoc
// @Summary Create draft timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimetableRequest true "Timetable payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req dto.CreateTimetableRequest
	if !bindJSON(c, &req, "invalid timetable payload") {
		return
	}
	timetable, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}

// List godoc
// @Summary List timetables
// @Tags Timetables
// @Produce json
// @Param academic_year query string false "Academic year"
// @Param semester query string false "Semester"
// @Param department_id query string false "Department"
// @Param status query string false "Status"
// @Param type query string false "Timetable type"
// @Param is_active query bool false "Active flag"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "Sort field"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	filter, err := parseTimetableFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	timetables, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetables, pagination)
}

// Get godoc
// @Summary Get timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, timetable)
}

// Update godoc
// @Summary Update timetable metadata
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.UpdateTimetableRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	var req dto.UpdateTimetableRequest
	if !bindJSON(c, &req, "invalid update payload") {
		return
	}
	timetable, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, timetable)
}

// Delete godoc
// @Summary Delete draft timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Param version query int true "Expected version"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	version, err := strconv.Atoi(c.Query("version"))
	if err != nil || version < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version query parameter is required"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), version, actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddSlot godoc
// @Summary Add slot to a draft timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.AddSlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots [post]
func (h *TimetableHandler) AddSlot(c *gin.Context) {
	var req dto.AddSlotRequest
	if !bindJSON(c, &req, "invalid slot payload") {
		return
	}
	timetable, err := h.service.AddSlot(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "unresolved_conflicts", timetable.UnresolvedCount())
	response.JSON(c, http.StatusOK, timetable, nil, middleware.ExtractMeta(c))
}

// RemoveSlot godoc
// @Summary Remove a slot or every slot of an event
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.RemoveSlotRequest true "Removal payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots [delete]
func (h *TimetableHandler) RemoveSlot(c *gin.Context) {
	var req dto.RemoveSlotRequest
	if !bindJSON(c, &req, "invalid slot removal payload") {
		return
	}
	timetable, err := h.service.RemoveSlot(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "unresolved_conflicts", timetable.UnresolvedCount())
	response.JSON(c, http.StatusOK, timetable, nil, middleware.ExtractMeta(c))
}

// Conflicts godoc
// @Summary Detect conflicts of a timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Param unresolved query bool false "Only unresolved conflicts"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/conflicts [get]
func (h *TimetableHandler) Conflicts(c *gin.Context) {
	unresolvedOnly, err := parseOptionalBool(c.Query("unresolved"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unresolved must be a boolean"))
		return
	}
	conflicts, err := h.service.ListConflicts(c.Request.Context(), c.Param("id"), unresolvedOnly != nil && *unresolvedOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(conflicts))
	response.JSON(c, http.StatusOK, conflicts, nil, middleware.ExtractMeta(c))
}

// ResolveConflict godoc
// @Summary Resolve a conflict
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param conflictId path string true "Conflict ID"
// @Param payload body dto.ResolveConflictRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/conflicts/{conflictId}/resolve [post]
func (h *TimetableHandler) ResolveConflict(c *gin.Context) {
	var req dto.ResolveConflictRequest
	if !bindJSON(c, &req, "invalid resolution payload") {
		return
	}
	conflict, err := h.service.ResolveConflict(c.Request.Context(), c.Param("id"), c.Param("conflictId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, conflict)
}

// Publish godoc
// @Summary Publish a draft timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.VersionRequest true "Expected version"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/publish [post]
func (h *TimetableHandler) Publish(c *gin.Context) {
	var req dto.VersionRequest
	if !bindJSON(c, &req, "invalid publish payload") {
		return
	}
	timetable, err := h.service.Publish(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, timetable)
}

// Archive godoc
// @Summary Archive a timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.VersionRequest true "Expected version"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/archive [post]
func (h *TimetableHandler) Archive(c *gin.Context) {
	var req dto.VersionRequest
	if !bindJSON(c, &req, "invalid archive payload") {
		return
	}
	timetable, err := h.service.Archive(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, timetable)
}

// Export godoc
// @Summary Download the weekly grid
// @Tags Timetables
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Timetable ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	file, err := h.exporter.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// History godoc
// @Summary Audit trail of a timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/history [get]
func (h *TimetableHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := parseOptionalInt(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if _, err := h.service.Get(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.history.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func parseTimetableFilter(c *gin.Context) (models.TimetableFilter, error) {
	filter := models.TimetableFilter{
		AcademicYear: strings.TrimSpace(c.Query("academic_year")),
		Semester:     models.Semester(strings.ToUpper(c.Query("semester"))),
		DepartmentID: strings.TrimSpace(c.Query("department_id")),
		Status:       models.TimetableStatus(strings.ToUpper(c.Query("status"))),
		Type:         models.TimetableType(strings.ToUpper(c.Query("type"))),
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}

	isActive, err := parseOptionalBool(c.Query("is_active"))
	if err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "is_active must be a boolean")
	}
	filter.IsActive = isActive

	if filter.Page, err = parseOptionalInt(c.Query("page")); err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
	}
	if filter.PageSize, err = parseOptionalInt(c.Query("page_size")); err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "page_size must be a positive integer")
	}
	return filter, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func parseOptionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, appErrors.ErrValidation
	}
	return value, nil
}
