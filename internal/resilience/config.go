package resilience

import (
	"time"

	"github.com/sells-group/siteselect/internal/config"
)

// FromConfig builds the breaker and retry settings from the resilience
// config section. Zero values keep the defaults.
func FromConfig(cfg config.ResilienceConfig) (BreakerConfig, RetryPolicy) {
	bc := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		bc.Cooldown = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}

	rp := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		rp.MaxAttempts = cfg.MaxRetries
	}
	return bc, rp
}
