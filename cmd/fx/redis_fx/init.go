package redis_fx

import (
	"log"
	"os"
	"strconv"

	"go.uber.org/fx"

	"coinscope/internal/infra"
	"coinscope/internal/repositories"
)

var Module = fx.Provide(
	provideRedis,
	repositories.NewPendingPaymentStore,
)

func provideRedis() *infra.RedisClient {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	client, err := infra.NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), db, "coinscope")
	if err != nil {
		log.Fatalf("Error connecting to redis: %v", err)
	}
	return client
}
