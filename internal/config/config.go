package config

import (
	"fmt"
	"os"
	"strconv"
)

// CashbackConfig is the tenant-wide cashback policy. Percentage rebate on
// qualifying orders, capped per order.
type CashbackConfig struct {
	Enabled             bool
	Percentage          float64
	MaxCashbackPerOrder float64
	MinOrderAmount      float64
	// ApplyOnWalletPayment controls whether the wallet-paid portion of an
	// order earns cashback. Disabled by default: wallet -> cashback ->
	// wallet would mint value out of nothing.
	ApplyOnWalletPayment bool
}

// Config holds everything the billing service needs at startup.
type Config struct {
	HTTPAddr string
	Currency string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	KafkaBroker       string
	KafkaOrderTopic   string
	KafkaProductTopic string
	KafkaToppingTopic string
	KafkaGroupID      string

	JWTSecret string

	// PaymentGateway selects the adapter: "razorpay" or "stripe".
	PaymentGateway        string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	StripeSecretKey       string

	Cashback CashbackConfig
}

// Load reads configuration from the environment. Secrets required by the
// selected gateway are hard failures; infrastructure addresses fall back to
// local defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8087"),
		Currency: getEnv("CURRENCY", "INR"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBroker:       getEnv("KAFKA_BROKER", "localhost:9092"),
		KafkaOrderTopic:   getEnv("KAFKA_ORDER_TOPIC", "order"),
		KafkaProductTopic: getEnv("KAFKA_PRODUCT_TOPIC", "product"),
		KafkaToppingTopic: getEnv("KAFKA_TOPPING_TOPIC", "topping"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "billing-service"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentGateway:        getEnv("PAYMENT_GATEWAY", "razorpay"),
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		StripeSecretKey:       os.Getenv("STRIPE_SECRET_KEY"),

		Cashback: CashbackConfig{
			Enabled:              getEnvBool("CASHBACK_ENABLED", true),
			Percentage:           getEnvFloat("CASHBACK_PERCENTAGE", 5),
			MaxCashbackPerOrder:  getEnvFloat("CASHBACK_MAX_PER_ORDER", 100),
			MinOrderAmount:       getEnvFloat("CASHBACK_MIN_ORDER_AMOUNT", 100),
			ApplyOnWalletPayment: getEnvBool("CASHBACK_APPLY_ON_WALLET_PAYMENT", false),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.PaymentGateway {
	case "razorpay":
		if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
			return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required for the razorpay gateway")
		}
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe gateway")
		}
	default:
		return nil, fmt.Errorf("unsupported PAYMENT_GATEWAY %q", cfg.PaymentGateway)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
