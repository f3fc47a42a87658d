package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	DirectoryConfig
	OAuthConfig
	SecurityConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type DirectoryConfig interface {
	GetDirectoryEnv() string
	GetDirectoryTokenURL() string
	GetDirectoryAssertionHost() string
	GetDirectoryKeystoreHost() string
	GetDirectoryClientID() string
	GetOrganisationID() string
	GetSoftwareStatementID() string
	GetRedirectURIs() []string
	GetSigningKeyID() string
}

type SessionConfig interface {
	GetSessionTTL() time.Duration
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
	GetStepRateLimit() float64
	GetStepRateBurst() int
}

type mainConfig struct {
	EnvVars
	Cors
	Directory
	OAuth
	Security
	Session
}

func New() Config {
	return mainConfig{}
}
