package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "trust-accounting-backend/internal/handlers"
	"trust-accounting-backend/internal/repository"
	reconciliation "trust-accounting-backend/internal/services/reconciliation"
	trust "trust-accounting-backend/internal/services/trust"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, engine *trust.Engine, recon *reconciliation.Service) {
	accountRepo := repository.NewTrustAccountRepository(db)
	ledgerRepo := repository.NewClientLedgerRepository(db)
	transactionRepo := repository.NewTrustTransactionRepository(db)

	trustHandler := handler.NewTrustHandler(engine, accountRepo, ledgerRepo, transactionRepo)
	reconHandler := handler.NewReconciliationHandler(recon)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	accounts := api.Group("/accounts")
	accounts.POST("", trustHandler.CreateAccount)
	accounts.GET("", trustHandler.ListAccounts)
	accounts.GET("/:id", trustHandler.GetAccount)
	accounts.POST("/:id/freeze", trustHandler.FreezeAccount)
	accounts.POST("/:id/unfreeze", trustHandler.UnfreezeAccount)
	accounts.POST("/:id/close", trustHandler.CloseAccount)
	accounts.POST("/:id/ledgers", trustHandler.CreateLedger)
	accounts.GET("/:id/ledgers", trustHandler.ListLedgers)
	accounts.GET("/:id/transactions", trustHandler.ListTransactions)
	accounts.POST("/:id/reconcile", reconHandler.Run)
	accounts.GET("/:id/reconciliations", reconHandler.History)

	ledgers := api.Group("/ledgers")
	ledgers.POST("/:id/close", trustHandler.CloseLedger)

	// Transaction-level routes
	tx := api.Group("/transactions")
	tx.POST("/deposit", trustHandler.RequestDeposit)
	tx.POST("/withdrawal", trustHandler.RequestWithdrawal)
	tx.POST("/:id/approve", trustHandler.ApproveTransaction)
	tx.POST("/:id/reject", trustHandler.RejectTransaction)
	tx.POST("/:id/void", trustHandler.VoidTransaction)
}
