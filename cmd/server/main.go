// Compass - Billing and client relationship backend
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/api"
	"github.com/aethra/compass/internal/auth"
	"github.com/aethra/compass/internal/billing"
	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/config"
	"github.com/aethra/compass/internal/database"
	"github.com/aethra/compass/internal/mailer"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/mutation"
	"github.com/aethra/compass/internal/pipeline"
	"github.com/aethra/compass/internal/store"
	"github.com/aethra/compass/internal/subscription"
	"github.com/aethra/compass/internal/usage"
	"gorm.io/gorm"
)

var Version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		runCLI()
		return
	}
	startServer()
}

func startServer() {
	fmt.Printf("Compass %s - Starting...\n", Version)

	cfg := config.Load()
	db := connectDB(cfg)
	log.Println("Database connected")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	st := store.NewGormStore(db)
	clk := clock.System()

	provider := billing.NewStripeProvider(cfg.Billing.StripeKey)
	gate := subscription.NewGate(st, provider, clk)
	ledger := usage.NewLedger(st, gate, clk)
	gate.SetRefetchHook(func(ctx context.Context, userID uuid.UUID) {
		if err := ledger.Refresh(ctx, userID, true); err != nil {
			log.Printf("usage refresh after subscription refetch failed: %v", err)
		}
	})

	protocol := mutation.NewProtocol(st, ledger, clk)
	pipelineSvc := pipeline.NewService(st)
	sender := mailer.NewResendSender(cfg.Mail.ResendKey)
	mailSvc := mailer.NewService(sender, st, protocol, cfg.Mail.From)
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret)

	handler := api.NewHandler(st, protocol, ledger, gate, pipelineSvc, mailSvc, jwtService, cfg.Billing.WebhookSecret)
	router := api.SetupRouter(handler, cfg.Server.AllowedOrigins)

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func connectDB(cfg *config.Config) *gorm.DB {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	return db
}

// CLI
func runCLI() {
	cmd := os.Args[1]
	switch cmd {
	case "serve":
		startServer()
	case "migrate":
		cfg := config.Load()
		db := connectDB(cfg)
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Migration complete")
	case "user":
		runUserCmd()
	case "version":
		fmt.Printf("Compass %s\n", Version)
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Compass - billing and client relationship backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  compass              Start the server")
	fmt.Println("  compass serve        Start the server")
	fmt.Println("  compass migrate      Run schema migration and seed data")
	fmt.Println("  compass user create <email> <password>   Create a user")
	fmt.Println("  compass version      Print the version")
}

func runUserCmd() {
	if len(os.Args) < 5 || os.Args[2] != "create" {
		printUsage()
		os.Exit(1)
	}
	email, password := os.Args[3], os.Args[4]

	cfg := config.Load()
	db := connectDB(cfg)
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	st := store.NewGormStore(db)

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Password hashing failed: %v", err)
	}

	ctx := context.Background()
	user := models.User{Email: email, PasswordHash: hash, IsActive: true}
	if err := st.InsertUser(ctx, &user); err != nil {
		log.Fatalf("User creation failed: %v", err)
	}
	profile := models.Profile{UserID: user.ID, PlanID: subscription.PlanFree, SubscriptionStatus: "active"}
	if err := st.InsertProfile(ctx, &profile); err != nil {
		log.Fatalf("Profile creation failed: %v", err)
	}
	fmt.Printf("Created user %s (%s)\n", email, user.ID)
}
