package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionTTL of zero disables eviction.
func (Session) GetSessionTTL() time.Duration {
	return GetDuration("SESSION_TTL", time.Hour)
}

func (Session) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Session) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Session) GetRedisDB() int {
	return GetInt("REDIS_DB", 0)
}

func (Session) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "o2b2:flow:")
}

func (Session) GetStepRateLimit() float64 {
	return GetFloat("STEP_RATE_LIMIT", 2)
}

func (Session) GetStepRateBurst() int {
	return GetInt("STEP_RATE_BURST", 5)
}
