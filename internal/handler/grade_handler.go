package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-core/backoffice-api/internal/service"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
	"github.com/campus-core/backoffice-api/pkg/response"
)

// GradeHandler exposes final grade read endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Get godoc
// @Summary Get a student's grade in a section
// @Tags Grades
// @Produce json
// @Param sectionId query string true "Section ID"
// @Param studentId query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) Get(c *gin.Context) {
	sectionID := c.Query("sectionId")
	studentID := c.Query("studentId")
	if sectionID == "" || studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sectionId and studentId are required"))
		return
	}
	grade, err := h.grades.Get(c.Request.Context(), sectionID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// ListByStudent godoc
// @Summary List a student's grades
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *GradeHandler) ListByStudent(c *gin.Context) {
	grades, err := h.grades.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// ListBySection godoc
// @Summary List a section's grades
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/grades [get]
func (h *GradeHandler) ListBySection(c *gin.Context) {
	grades, err := h.grades.ListBySection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}
