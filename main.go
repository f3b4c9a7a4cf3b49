package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bounty-settlement-system/handlers"
	"bounty-settlement-system/middleware"
	"bounty-settlement-system/models"
	"bounty-settlement-system/services"
	"bounty-settlement-system/utils"
	"bounty-settlement-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Wallet-Address, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Bounty{},
		&models.Submission{},
		&models.EscrowAccount{},
		&models.Disbursement{},
		&models.Identity{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ledgerService := services.NewLedgerService(db)
	bountyService := services.NewBountyService(db, ledgerService)
	settlementService := services.NewSettlementService(db, ledgerService)
	submissionService := services.NewSubmissionService(db, settlementService)

	serviceToken := os.Getenv("BOUNTY_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("BOUNTY_SERVICE_TOKEN environment variable not set")
	}
	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	accountingServiceURL := os.Getenv("ACCOUNTING_SERVICE_URL")
	if accountingServiceURL == "" {
		log.Fatal("ACCOUNTING_SERVICE_URL environment variable not set")
	}

	identityWorker := workers.NewIdentitySyncWorker(db, profileServiceURL, "/api/v1/public/linked-accounts", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identityWorker.Start(ctx)
	ledgerService.StartDisbursementScheduler(accountingServiceURL, serviceToken)

	handlers.SetupBountyRoutes(app, bountyService, ledgerService, submissionService)
	handlers.SetupSubmissionRoutes(app, submissionService)
	handlers.SetupWebhookRoutes(app, submissionService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Identity Sync Worker running")
	log.Println("✅ Disbursement scheduler running (dispatch every 1m, export daily)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
