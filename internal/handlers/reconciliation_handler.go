package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trust-accounting-backend/internal/money"
	service "trust-accounting-backend/internal/services/reconciliation"
)

type ReconciliationHandler struct {
	service *service.Service
}

func NewReconciliationHandler(s *service.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

func (h *ReconciliationHandler) Run(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}

	var payload struct {
		PeriodEnd            string `json:"period_end"` // "yyyy-mm-dd"
		BankStatementBalance string `json:"bank_statement_balance"`
		Notes                string `json:"notes"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	periodEnd, err := time.Parse("2006-01-02", payload.PeriodEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period end, expected yyyy-mm-dd"})
		return
	}

	bankBalance, err := money.Parse(payload.BankStatementBalance)
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := h.service.Run(c.Request.Context(), actor, accountID, periodEnd, bankBalance, payload.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"record": record})
}

func (h *ReconciliationHandler) History(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}

	records, err := h.service.History(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
