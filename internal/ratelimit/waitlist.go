package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/zap"
)

const (
	keyWaitlistIP    = "waitlist:ip:%s"
	keyWaitlistEmail = "waitlist:email:%s"
)

// WaitlistLimiter throttles waitlist sign-ups per client IP and per email.
// A nil limiter allows everything.
type WaitlistLimiter struct {
	bucket *TokenBucket

	ipRate     float64
	ipBurst    int
	emailRate  float64
	emailBurst int
}

func NewWaitlistLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*WaitlistLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		log.Warn("rate limiting enabled without redis, waitlist limits disabled")
		return nil, nil
	}
	if limitCfg.WaitlistRate <= 0 || limitCfg.WaitlistBurst <= 0 {
		return nil, errors.New("waitlist rate limit must be positive")
	}
	if limitCfg.WaitlistEmailRate <= 0 || limitCfg.WaitlistEmailBurst <= 0 {
		return nil, errors.New("waitlist email rate limit must be positive")
	}

	return &WaitlistLimiter{
		bucket:     NewTokenBucket(client),
		ipRate:     limitCfg.WaitlistRate,
		ipBurst:    limitCfg.WaitlistBurst,
		emailRate:  limitCfg.WaitlistEmailRate,
		emailBurst: limitCfg.WaitlistEmailBurst,
	}, nil
}

func (l *WaitlistLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WaitlistLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWaitlistIP, strings.TrimSpace(ip)), l.ipRate, l.ipBurst)
}

func (l *WaitlistLimiter) AllowEmail(ctx context.Context, email string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWaitlistEmail, email), l.emailRate, l.emailBurst)
}
