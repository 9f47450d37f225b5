package exchange

import (
	"strings"

	"github.com/finanze/finanze/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewRedisClient builds the optional cache client. A nil client disables the
// redis cache level.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("exchange.provider",
	fx.Provide(
		NewRedisClient,
		New,
	),
)
