package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDirectoryHosts(t *testing.T) {
	t.Run("sandbox is the default", func(t *testing.T) {
		c := config.New()
		require.Equal(t, "sandbox", c.GetDirectoryEnv())
		require.Equal(t, "https://matls-auth.sandbox.directory.openbankingbrasil.org.br/token", c.GetDirectoryTokenURL())
		require.Equal(t, "https://keystore.sandbox.directory.openbankingbrasil.org.br", c.GetDirectoryKeystoreHost())
	})

	t.Run("production hosts", func(t *testing.T) {
		t.Setenv("DIRECTORY_ENV", "production")
		c := config.New()
		require.Equal(t, "production", c.GetDirectoryEnv())
		require.Equal(t, "https://matls-auth.directory.openbankingbrasil.org.br", c.GetDirectoryAssertionHost())
		require.Equal(t, "https://keystore.directory.openbankingbrasil.org.br", c.GetDirectoryKeystoreHost())
	})
}

func TestEnvValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DIRECTORY_SOFTWARE_STATEMENT_REDIRECT_URIS", "https://a.example/cb, https://b.example/cb,")
	t.Setenv("SESSION_TTL", "90s")
	t.Setenv("CERTS_FOLDER", "/etc/obb")
	t.Setenv("OBB_FIXED_PKCE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://ui.example")

	c := config.New()
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, []string{"https://a.example/cb", "https://b.example/cb"}, c.GetRedirectURIs())
	require.Equal(t, 90*time.Second, c.GetSessionTTL())
	require.Equal(t, filepath.Join("/etc/obb", "transport.pem"), c.GetTransportCertPath())
	require.True(t, c.GetUseFixedPKCE())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://ui.example"))
	require.Equal(t, 5*time.Second, c.GetCallbackRetryInterval())
}
