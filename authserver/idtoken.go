package authserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

// IDTokenClaims are the verified claims kept on the flow
type IDTokenClaims struct {
	Subject string `json:"sub"`
	Nonce   string `json:"nonce"`
}

// VerifiesIDTokens reports whether a decryption key was configured.
func (c *Client) VerifiesIDTokens() bool {
	return c.config.IDTokenDecryptionKey != nil
}

// VerifyIDToken decrypts a JWE ID token when needed, then checks signature,
// issuer, audience and nonce against the discovered provider.
func (c *Client) VerifyIDToken(ctx context.Context, clientID, rawIDToken, nonce string) (*IDTokenClaims, error) {
	const op = "id token verification"
	provider, _, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	signed := rawIDToken
	if strings.Count(rawIDToken, ".") == 4 {
		signed, err = c.decrypt(rawIDToken)
		if err != nil {
			return nil, apperrors.New(apperrors.KindDecode, op, err)
		}
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: []string{oidc.PS256},
	})
	idToken, err := verifier.Verify(oidc.ClientContext(ctx, c.identity.Client()), signed)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}

	claims := &IDTokenClaims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}
	if claims.Nonce != nonce {
		return nil, apperrors.New(apperrors.KindDecode, op, fmt.Errorf("nonce mismatch"))
	}
	return claims, nil
}

func (c *Client) decrypt(compact string) (string, error) {
	if c.config.IDTokenDecryptionKey == nil {
		return "", fmt.Errorf("encrypted id token but no decryption key configured")
	}
	encrypted, err := jose.ParseEncrypted(compact,
		[]jose.KeyAlgorithm{jose.RSA_OAEP},
		[]jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return "", fmt.Errorf("failed to parse encrypted id token: %w", err)
	}
	plaintext, err := encrypted.Decrypt(c.config.IDTokenDecryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt id token: %w", err)
	}
	return string(plaintext), nil
}
