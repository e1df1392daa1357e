package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"coinscope/cmd/fx/catalog_fx"
	"coinscope/cmd/fx/controllers_fx"
	"coinscope/cmd/fx/crypto_fx"
	"coinscope/cmd/fx/db_fx"
	"coinscope/cmd/fx/gateway_fx"
	"coinscope/cmd/fx/mail_fx"
	"coinscope/cmd/fx/redis_fx"
	"coinscope/cmd/fx/repositories_fx"
	"coinscope/cmd/fx/subscription_fx"
	"coinscope/internal/api/controllers"
	"coinscope/internal/services"
	"coinscope/pkg/logger"
	"coinscope/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	development := os.Getenv("APP_ENV") != "production"
	if err := logger.Init(development, logger.LogLevel(os.Getenv("LOG_LEVEL"))); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("APP_ENV"),
		}); err != nil {
			log.Printf("Warning: sentry init failed: %v", err)
		}
	}

	app := fx.New(
		db_fx.Module,
		redis_fx.Module,
		catalog_fx.Module,
		repositories_fx.Module,
		gateway_fx.Module,
		crypto_fx.Module,
		mail_fx.Module,
		subscription_fx.Module,
		controllers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
		fx.Invoke(StartExpiryWorker),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := os.Getenv("PORT")
				if port == "" {
					port = "8080"
				}
				log.Printf("Starting HTTP server at :%s", port)
				if err := engine.Run(":" + port); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Stopping HTTP server")
			return nil
		},
	})
}

func StartExpiryWorker(lc fx.Lifecycle, worker *services.ExpiryWorker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			worker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			worker.Stop()
			return nil
		},
	})
}

func ProvideRouter(
	planController *controllers.PlanController,
	subscriptionController *controllers.SubscriptionController,
	webhookController *controllers.WebhookController) *gin.Engine {

	r := gin.Default()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.CORSMiddleware())

	RegisterRoutes(r, planController, subscriptionController, webhookController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	planController *controllers.PlanController,
	subscriptionController *controllers.SubscriptionController,
	webhookController *controllers.WebhookController) {

	// Webhooks are signature-authenticated and need the raw body, so they
	// stay off the JWT-protected group.
	r.POST("/webhooks/stripe", webhookController.HandleStripe)
	r.POST("/webhooks/commerce", webhookController.HandleCommerce)

	api := r.Group("/api")
	api.GET("/plans", planController.ListPlans)

	authed := api.Group("")
	authed.Use(middleware.JWTAuthMiddleware())
	authed.POST("/subscribe/stripe", subscriptionController.SubscribeStripe)
	authed.POST("/subscribe/wallet-payment", subscriptionController.WalletPayment)
	authed.POST("/verify-transaction", subscriptionController.VerifyTransaction)
	authed.GET("/subscription", subscriptionController.GetSubscription)
	authed.POST("/subscription/cancel", subscriptionController.Cancel)
	authed.POST("/subscribe/renewal-info", subscriptionController.RenewalInfo)
	authed.POST("/subscribe/renew", subscriptionController.Renew)
}
