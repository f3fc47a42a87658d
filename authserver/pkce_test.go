package authserver_test

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/ranierimazili/o2b2-fido-client/authserver"
	"github.com/stretchr/testify/require"
)

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestPKCE(t *testing.T) {
	first, second := authserver.NewPKCE(), authserver.NewPKCE()
	require.NotEqual(t, first.Verifier, second.Verifier)
	require.Len(t, first.Verifier, 43)
	require.Equal(t, s256(first.Verifier), first.Challenge)

	fixed := authserver.FixedPKCE()
	require.Equal(t, s256(fixed.Verifier), fixed.Challenge)

	require.NotEqual(t, authserver.NewNonce(), authserver.NewNonce())
}
