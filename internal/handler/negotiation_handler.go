package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-core/backoffice-api/internal/service"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
	"github.com/campus-core/backoffice-api/pkg/response"
)

// NegotiationHandler exposes debt summary and renegotiation endpoints.
type NegotiationHandler struct {
	negotiations *service.NegotiationService
}

// NewNegotiationHandler constructs NegotiationHandler.
func NewNegotiationHandler(negotiations *service.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{negotiations: negotiations}
}

// DebtSummary godoc
// @Summary Get a student's debt summary
// @Tags Negotiations
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/debt-summary [get]
func (h *NegotiationHandler) DebtSummary(c *gin.Context) {
	summary, err := h.negotiations.DebtSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Preview godoc
// @Summary Preview a renegotiation plan
// @Tags Negotiations
// @Accept json
// @Produce json
// @Param payload body service.NegotiationRequest true "Negotiation payload"
// @Success 200 {object} response.Envelope
// @Router /negotiations/preview [post]
func (h *NegotiationHandler) Preview(c *gin.Context) {
	var req service.NegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	plan, err := h.negotiations.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Execute godoc
// @Summary Execute a renegotiation
// @Tags Negotiations
// @Accept json
// @Produce json
// @Param payload body service.NegotiationExecuteRequest true "Negotiation payload"
// @Success 201 {object} response.Envelope
// @Router /negotiations [post]
func (h *NegotiationHandler) Execute(c *gin.Context) {
	var req service.NegotiationExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.negotiations.Execute(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GenerateTermInvoices godoc
// @Summary Generate term tuition invoices for a student
// @Tags Negotiations
// @Accept json
// @Produce json
// @Param payload body service.GenerateTermInvoicesRequest true "Generation payload"
// @Success 201 {object} response.Envelope
// @Router /invoices/generate-term [post]
func (h *NegotiationHandler) GenerateTermInvoices(c *gin.Context) {
	var req service.GenerateTermInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	invoices, err := h.negotiations.GenerateTermInvoices(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoices)
}
