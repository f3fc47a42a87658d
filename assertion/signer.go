package assertion

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Lifetime is the validity window of every signed artifact.
const Lifetime = 5 * time.Minute

// ClientAssertionType is the client_assertion_type value for private_key_jwt
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Signer produces the short-lived JWTs used for client authentication,
// signed request objects and detached-JWT request bodies.
type Signer interface {
	// SignClientAssertion builds a private_key_jwt assertion for clientID addressed to audience
	SignClientAssertion(clientID, audience string) (string, error)

	// SignRequestObject signs caller supplied request parameters as a request object
	SignRequestObject(clientID, audience string, claims map[string]any) (string, error)

	// SignPayload wraps a JSON body as the claims of a JWT issued by the organisation
	SignPayload(body any, audience string) (string, error)
}

// KeyPairSigner signs with an RSA key using PS256
type KeyPairSigner struct {
	keyID          string
	organisationID string
	privateKey     *rsa.PrivateKey
}

var _ Signer = (*KeyPairSigner)(nil)

// NewKeyPairSigner creates a signer. keyID is published in the kid header and
// organisationID is the issuer of signed payloads.
func NewKeyPairSigner(keyID, organisationID string, privateKey *rsa.PrivateKey) *KeyPairSigner {
	return &KeyPairSigner{
		keyID:          keyID,
		organisationID: organisationID,
		privateKey:     privateKey,
	}
}

func (s *KeyPairSigner) SignClientAssertion(clientID, audience string) (string, error) {
	now := NowTimeFunc()
	claims := jwt.MapClaims{
		"sub": clientID,
		"iss": clientID,
		"aud": audience,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(Lifetime).Unix(),
	}
	return s.sign("client assertion", claims)
}

func (s *KeyPairSigner) SignRequestObject(clientID, audience string, params map[string]any) (string, error) {
	now := NowTimeFunc()
	claims := jwt.MapClaims{}
	for k, v := range params {
		claims[k] = v
	}
	claims["iss"] = clientID
	claims["aud"] = audience
	claims["jti"] = uuid.New().String()
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["exp"] = now.Add(Lifetime).Unix()
	return s.sign("request object", claims)
}

func (s *KeyPairSigner) SignPayload(body any, audience string) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", apperrors.New(apperrors.KindSigning, "signed payload", err)
	}
	claims := jwt.MapClaims{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return "", apperrors.New(apperrors.KindSigning, "signed payload", fmt.Errorf("payload must be a JSON object: %w", err))
	}

	now := NowTimeFunc()
	claims["iss"] = s.organisationID
	claims["aud"] = audience
	claims["jti"] = uuid.New().String()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(Lifetime).Unix()
	return s.sign("signed payload", claims)
}

func (s *KeyPairSigner) sign(op string, claims jwt.MapClaims) (string, error) {
	if s.privateKey == nil {
		return "", apperrors.New(apperrors.KindSigning, op, fmt.Errorf("no signing key loaded"))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodPS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		log.Err(err).Str("op", op).Msg("failed to sign jwt")
		return "", apperrors.New(apperrors.KindSigning, op, err)
	}
	return signed, nil
}
