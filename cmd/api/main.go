package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wenwu/saas-platform/wifi-billing-service/internal/client"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/config"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/db"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/http"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/repository"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/service"
)

func main() {
	log.Println("Starting WiFi Billing Service...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	pool, err := db.NewPool(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx, pool); err != nil {
		cancelMigrate()
		log.Fatalf("Failed to run migrations: %v", err)
	}
	cancelMigrate()

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	packageRepo := repository.NewPackageRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	packetRepo := repository.NewPacketRepository(pool)
	transactionRepo := repository.NewTransactionRepository(pool)

	// Initialize clients
	intasendClient := client.NewIntaSendClient(
		cfg.IntaSend.BaseURL,
		cfg.IntaSend.PublicKey,
		cfg.IntaSend.PrivateKey,
		cfg.IntaSend.CallbackURL,
		cfg.IntaSend.Timeout,
	)

	// Initialize services
	userService := service.NewUserService(cfg, userRepo)
	packageService := service.NewPackageService(packageRepo)
	usageService := service.NewUsageService(userRepo, packageRepo, sessionRepo, packetRepo)
	paymentService := service.NewPaymentService(
		cfg,
		userRepo,
		packageRepo,
		transactionRepo,
		intasendClient,
		usageService,
	)

	// Initialize HTTP server
	handler := http.NewHandler(userService, packageService, usageService, paymentService)
	server := http.NewServer(cfg, handler)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Reconciliation sweep: periodically settles transactions the gateway
	// never called back about
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.Reconcile.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := paymentService.ReconcilePending(sweepCtx); err != nil {
					log.Printf("[Reconcile] Sweep failed: %v", err)
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancelSweep()

	log.Println("Server exited")
}
