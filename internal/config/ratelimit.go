package config

import (
	"time"
)

// RateLimitConfig tunes one Redis token bucket.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig is the general /api bucket: 100 requests per 15
// minutes per client by default.
func LoadRateLimitConfig() RateLimitConfig {
	return loadBucket("RATE_LIMIT", RateLimitConfig{
		Capacity:       100,
		RefillTokens:   100,
		RefillInterval: 15 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	})
}

// LoadLoginRateLimitConfig is the stricter bucket in front of POST
// /api/login: 7 attempts per 10 minutes per client.
func LoadLoginRateLimitConfig() RateLimitConfig {
	return loadBucket("LOGIN_RATE_LIMIT", RateLimitConfig{
		Capacity:       7,
		RefillTokens:   7,
		RefillInterval: 10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:login",
	})
}

func loadBucket(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool(prefix+"_ENABLED", true),
		Capacity:       envInt(prefix+"_CAPACITY", def.Capacity),
		RefillTokens:   envInt(prefix+"_REFILL_TOKENS", def.RefillTokens),
		RefillInterval: envDur(prefix+"_REFILL_INTERVAL", def.RefillInterval),
		TTL:            envDur(prefix+"_TTL", 0),
		KeyStrategy:    envStr(prefix+"_KEY_STRATEGY", def.KeyStrategy),
		Prefix:         envStr(prefix+"_PREFIX", def.Prefix),
		Debug:          envBool(prefix+"_DEBUG", false),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// state must outlive a full refill or an idle client gets a fresh bucket early
	if minTTL := 2 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
