package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/config"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/coupon"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/db"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/transport"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "checkout-service").Logger()

	log.Info().Msg("Checkout service starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	dbConn, err := db.New(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	var notifier notify.Sender
	if cfg.Notifier.URL != "" {
		notifier = notify.NewHTTPSender(cfg.Notifier.URL, cfg.Notifier.Timeout)
	} else {
		log.Warn().Msg("No notification endpoint configured, notifications disabled")
		notifier = notify.NewNoopSender()
	}

	products := catalog.NewRepository(dbConn.Pool)
	validator := inventory.NewValidator(products)

	couponRepo := coupon.NewRepository(dbConn.Pool)
	coupons := coupon.NewService(couponRepo)

	users := user.NewDirectory(dbConn.Pool)

	orderRepo := order.NewRepository(dbConn.Pool)
	orders := order.NewService(orderRepo, users, validator, coupons, notifier)

	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	paymentRepo := payment.NewRepository(dbConn.Pool)
	payments := payment.NewService(orderRepo, paymentRepo, gateway, notifier, "usd", "/payments/paylater")

	router := transport.NewRouter(
		handler.NewOrderHandler(orders),
		handler.NewPaymentHandler(payments),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
