package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/internal/service"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
	"github.com/campus-core/backoffice-api/pkg/response"
)

// AttendanceHandler exposes attendance entry and correction endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param sessionId query string false "Filter by session"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.SessionID = c.Query("sessionId")
	filter.StudentID = c.Query("studentId")
	filter.Status = models.AttendanceStatus(c.Query("status"))
	filter.Page, filter.PageSize = pageParams(c)

	records, pagination, err := h.attendance.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Record godoc
// @Summary Record attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

type correctAttendanceRequest struct {
	Status models.AttendanceStatus `json:"status" binding:"required"`
}

// Correct godoc
// @Summary Correct an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Correct(c *gin.Context) {
	var req correctAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Correct(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Remove godoc
// @Summary Remove an attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Record ID"
// @Success 204 {object} nil
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Remove(c *gin.Context) {
	if err := h.attendance.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Recalculate godoc
// @Summary Recalculate absence counters for a student in a section
// @Tags Attendance
// @Produce json
// @Param sectionId query string true "Section ID"
// @Param studentId query string true "Student ID"
// @Success 204 {object} nil
// @Router /attendance/recalculate [post]
func (h *AttendanceHandler) Recalculate(c *gin.Context) {
	sectionID := c.Query("sectionId")
	studentID := c.Query("studentId")
	if sectionID == "" || studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sectionId and studentId are required"))
		return
	}
	if err := h.attendance.Recalculate(c.Request.Context(), studentID, sectionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
