package authserver

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// Legacy constants used by interop harnesses that expect a fixed PKCE pair and nonce
const (
	FixedCodeVerifier  = "jk24853kjh535308u4h538u53o53805jo3583h59385398453h4583h534853hu853985h39h593"
	FixedCodeChallenge = "s7O3BLoJFer_w_HzH_RpLj-USoWbu_ROqwS0tW2Lmj4"
	FixedNonce         = "S05tH4J105"
)

// PKCE is a code verifier and its S256 challenge
type PKCE struct {
	Verifier  string `json:"verifier"`
	Challenge string `json:"challenge"`
}

// NewPKCE generates a random verifier and its S256 challenge.
func NewPKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{Verifier: verifier, Challenge: oauth2.S256ChallengeFromVerifier(verifier)}
}

// FixedPKCE returns the legacy constant pair.
func FixedPKCE() PKCE {
	return PKCE{Verifier: FixedCodeVerifier, Challenge: FixedCodeChallenge}
}

// NewNonce creates a random base64url nonce
func NewNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
