package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/KoushikPanda1729/billing-service/internal/api"
	"github.com/KoushikPanda1729/billing-service/internal/catalog"
	"github.com/KoushikPanda1729/billing-service/internal/config"
	"github.com/KoushikPanda1729/billing-service/internal/coupon"
	"github.com/KoushikPanda1729/billing-service/internal/delivery"
	"github.com/KoushikPanda1729/billing-service/internal/idempotency"
	"github.com/KoushikPanda1729/billing-service/internal/order"
	"github.com/KoushikPanda1729/billing-service/internal/payment"
	"github.com/KoushikPanda1729/billing-service/internal/pricing"
	"github.com/KoushikPanda1729/billing-service/internal/tax"
	"github.com/KoushikPanda1729/billing-service/internal/wallet"
	"github.com/KoushikPanda1729/billing-service/internal/worker"
	"github.com/KoushikPanda1729/billing-service/pkg/kafka"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to reach database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	producer := kafka.NewProducer(cfg.KafkaBroker, cfg.KafkaOrderTopic)
	defer producer.Close()

	gateway, err := payment.NewGateway(cfg)
	if err != nil {
		log.Fatalf("failed to build payment gateway: %v", err)
	}

	// Stores.
	catalogStore := catalog.NewCachedStore(catalog.NewPostgresStore(db), rdb)
	taxStore := tax.NewPostgresStore(db)
	deliveryStore := delivery.NewPostgresStore(db)
	couponStore := coupon.NewPostgresStore(db)
	walletStore := wallet.NewPostgresStore(db)
	idemStore := idempotency.NewPostgresStore(db)
	orderStore := order.NewPostgresStore(db, idemStore)

	// Services.
	calculator := pricing.NewCalculator(catalogStore, taxStore, deliveryStore)
	walletSvc := wallet.NewService(walletStore, cfg.Cashback, logging.New("wallet"))
	orderSvc := order.NewService(calculator, couponStore, walletSvc, orderStore, producer, logging.New("order"))
	paymentSvc := payment.NewService(orderStore, walletSvc, gateway, producer, logging.New("payment"), cfg.Currency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catalog sync consumers keep the local product/topping snapshot fresh.
	syncHandler := catalog.NewSyncHandler(catalogStore, logging.New("catalog-sync"))
	for _, topic := range []string{cfg.KafkaProductTopic, cfg.KafkaToppingTopic} {
		consumer := kafka.NewConsumer([]string{cfg.KafkaBroker}, topic, cfg.KafkaGroupID)
		defer consumer.Close()
		go consumer.Start(ctx, syncHandler.Handle)
	}

	reconciler := worker.NewReconciler(orderStore, paymentSvc, logging.New("reconciler"))
	go reconciler.Start(ctx)

	handler := api.NewHandler(orderSvc, paymentSvc, walletSvc, couponStore,
		logging.New("api"), cfg.RazorpayWebhookSecret)

	app := fiber.New()
	api.RegisterRoutes(app, handler, cfg.JWTSecret, idemStore)

	go func() {
		<-ctx.Done()
		log.Println("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("billing service listening on %s", cfg.HTTPAddr)
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
