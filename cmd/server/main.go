package main

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"trust-accounting-backend/internal/collab"
	"trust-accounting-backend/internal/config"
	"trust-accounting-backend/internal/events/kafka"
	"trust-accounting-backend/internal/interfaces"
	"trust-accounting-backend/internal/models"
	"trust-accounting-backend/internal/repository"
	"trust-accounting-backend/internal/routes"
	reconciliation "trust-accounting-backend/internal/services/reconciliation"
	trust "trust-accounting-backend/internal/services/trust"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	db.AutoMigrate(
		&models.TrustAccount{},
		&models.ClientLedger{},
		&models.TrustTransaction{},
		&models.TransactionAllocation{},
		&models.ReconciliationRecord{},
		&models.BillingPeriodLock{},
		&models.Client{},
		&models.Matter{},
	)

	var audit interfaces.AuditSink = collab.NopAuditSink{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
		defer publisher.Close()
		audit = publisher
	}

	engine := trust.NewEngine(
		db,
		collab.NewStaticAuthorizer(cfg.ApproverIDs),
		collab.NewLockTablePeriodGuard(db),
		collab.NewTableRegistry(db),
		audit,
		logger,
	)
	recon := reconciliation.NewService(
		db,
		repository.NewReconciliationRepository(db),
		audit,
		logger,
		cfg.ReconcileTolerance,
	)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Actor-Id", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, engine, recon)

	if err := r.Run(cfg.ServerAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
