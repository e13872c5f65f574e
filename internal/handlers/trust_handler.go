package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trust-accounting-backend/internal/money"
	"trust-accounting-backend/internal/repository"
	trust "trust-accounting-backend/internal/services/trust"
)

type TrustHandler struct {
	engine       *trust.Engine
	accounts     *repository.TrustAccountRepository
	ledgers      *repository.ClientLedgerRepository
	transactions *repository.TrustTransactionRepository
}

func NewTrustHandler(
	engine *trust.Engine,
	accounts *repository.TrustAccountRepository,
	ledgers *repository.ClientLedgerRepository,
	transactions *repository.TrustTransactionRepository,
) *TrustHandler {
	return &TrustHandler{
		engine:       engine,
		accounts:     accounts,
		ledgers:      ledgers,
		transactions: transactions,
	}
}

func (h *TrustHandler) CreateAccount(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var payload struct {
		FirmEntity string `json:"firm_entity"`
		Office     string `json:"office"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	account, err := h.engine.CreateAccount(c.Request.Context(), actor, payload.FirmEntity, payload.Office)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

func (h *TrustHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context(), c.Query("entity"), c.Query("office"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *TrustHandler) GetAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}

	account, err := h.accounts.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *TrustHandler) FreezeAccount(c *gin.Context) {
	h.accountTransition(c, h.engine.FreezeAccount)
}

func (h *TrustHandler) UnfreezeAccount(c *gin.Context) {
	h.accountTransition(c, h.engine.UnfreezeAccount)
}

func (h *TrustHandler) CloseAccount(c *gin.Context) {
	h.accountTransition(c, h.engine.CloseAccount)
}

func (h *TrustHandler) accountTransition(c *gin.Context, op func(context.Context, string, uuid.UUID) error) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}

	if err := op(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (h *TrustHandler) CreateLedger(c *gin.Context) {
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
		ClientID string  `json:"client_id"`
		MatterID *string `json:"matter_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	clientID, err := uuid.Parse(payload.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}

	var matterID *uuid.UUID
	if payload.MatterID != nil {
		parsed, err := uuid.Parse(*payload.MatterID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid matter ID"})
			return
		}
		matterID = &parsed
	}

	ledger, err := h.engine.CreateLedger(c.Request.Context(), actor, accountID, clientID, matterID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ledger": ledger})
}

func (h *TrustHandler) ListLedgers(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}

	ledgers, err := h.ledgers.ListByAccount(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledgers": ledgers})
}

func (h *TrustHandler) CloseLedger(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	ledgerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ledger ID"})
		return
	}

	if err := h.engine.CloseLedger(c.Request.Context(), actor, ledgerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ledger closed"})
}

type allocationPayload struct {
	LedgerID string `json:"ledger_id"`
	Amount   string `json:"amount"`
}

func (h *TrustHandler) RequestDeposit(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var payload struct {
		AccountID   string              `json:"account_id"`
		Amount      string              `json:"amount"`
		Allocations []allocationPayload `json:"allocations"`
		Description string              `json:"description"`
		Payee       string              `json:"payee"`
		Reference   string              `json:"reference"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}
	amount, err := money.Parse(payload.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	allocations := make(money.Allocations, 0, len(payload.Allocations))
	for _, al := range payload.Allocations {
		ledgerID, err := uuid.Parse(al.LedgerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid allocation ledger ID"})
			return
		}
		alAmount, err := money.Parse(al.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		allocations = append(allocations, money.Allocation{LedgerID: ledgerID, Amount: alAmount})
	}

	req := trust.DepositRequest{
		AccountID:      accountID,
		Amount:         amount,
		Allocations:    allocations,
		Description:    payload.Description,
		Payee:          payload.Payee,
		Reference:      payload.Reference,
		IdempotencyKey: idempotencyKey(c),
	}

	txn, err := h.engine.RequestDeposit(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

func (h *TrustHandler) RequestWithdrawal(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var payload struct {
		AccountID   string `json:"account_id"`
		LedgerID    string `json:"ledger_id"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
		Payee       string `json:"payee"`
		Reference   string `json:"reference"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}
	ledgerID, err := uuid.Parse(payload.LedgerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ledger ID"})
		return
	}
	amount, err := money.Parse(payload.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	req := trust.WithdrawalRequest{
		AccountID:      accountID,
		LedgerID:       ledgerID,
		Amount:         amount,
		Description:    payload.Description,
		Payee:          payload.Payee,
		Reference:      payload.Reference,
		IdempotencyKey: idempotencyKey(c),
	}

	txn, err := h.engine.RequestWithdrawal(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

func (h *TrustHandler) ListTransactions(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
		return
	}

	status := c.Query("status")
	cursor := c.Query("cursor")
	limit := 50

	items, nextCursor, hasMore, err := h.transactions.ListByAccount(c.Request.Context(), accountID, status, cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func (h *TrustHandler) ApproveTransaction(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	txn, err := h.engine.Approve(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction approved", "transaction": txn})
}

func (h *TrustHandler) RejectTransaction(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	txn, err := h.engine.Reject(c.Request.Context(), actor, id, payload.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction rejected", "transaction": txn})
}

func (h *TrustHandler) VoidTransaction(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	txn, err := h.engine.Void(c.Request.Context(), actor, id, payload.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction voided", "transaction": txn})
}

func idempotencyKey(c *gin.Context) *string {
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		return &key
	}
	return nil
}
