package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	portEnvVar     = "SERVER_PORT"
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelEnvVar = "LOG_LEVEL"
)

var env = newEnv()

func newEnv() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "4100")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "o2b2 fido client")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := env.GetString(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetBool(envVar string, defaultValue bool) bool {
	if !env.IsSet(envVar) {
		return defaultValue
	}
	return env.GetBool(envVar)
}

func GetInt(envVar string, defaultValue int) int {
	if !env.IsSet(envVar) {
		return defaultValue
	}
	return env.GetInt(envVar)
}

func GetFloat(envVar string, defaultValue float64) float64 {
	if !env.IsSet(envVar) {
		return defaultValue
	}
	return env.GetFloat64(envVar)
}

func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	if !env.IsSet(envVar) {
		return defaultValue
	}
	return env.GetDuration(envVar)
}

// GetList splits a comma separated variable, dropping empty entries.
func GetList(envVar string) []string {
	var out []string
	for _, item := range strings.Split(GetEnv(envVar, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
