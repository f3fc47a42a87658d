package config

import "time"

type OAuthConfig interface {
	GetDiscoveryEndpoint() string
	GetPaymentAPIHostPrefix() string
	GetUseFixedPKCE() bool
	GetCallbackRetryInterval() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetDiscoveryEndpoint() string {
	return GetEnv("OPENID_DISCOVERY_ENDPOINT", "")
}

func (OAuth) GetPaymentAPIHostPrefix() string {
	return GetEnv("PAYMENT_API_HOST_PREFIX", "")
}

// GetUseFixedPKCE switches PAR and code exchange to the legacy constant verifier, challenge and nonce.
func (OAuth) GetUseFixedPKCE() bool {
	return GetBool("OBB_FIXED_PKCE", false)
}

// GetCallbackRetryInterval is how often a waiting agent polls for the authorization code.
func (OAuth) GetCallbackRetryInterval() time.Duration {
	return GetDuration("CALLBACK_RETRY_INTERVAL", 5*time.Second)
}
