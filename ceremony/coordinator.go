// Package ceremony bridges server issued WebAuthn options and a platform
// authenticator. Options arrive with base64url strings, the authenticator
// works on bytes, and results travel back as base64url JSON.
package ceremony

import (
	"context"
	"encoding/json"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/rs/zerolog/log"
)

type AttestationResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject"`
}

// RegistrationResult is the wire form of an AttestationCredential
type RegistrationResult struct {
	ID       string              `json:"id"`
	RawID    string              `json:"rawId"`
	Type     string              `json:"type"`
	Response AttestationResponse `json:"response"`
}

type AssertionResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// SignResult is the wire form of an AssertionCredential
type SignResult struct {
	ID       string            `json:"id"`
	RawID    string            `json:"rawId"`
	Type     string            `json:"type"`
	Response AssertionResponse `json:"response"`
}

func credentialType(t string) string {
	if t == "" {
		return "public-key"
	}
	return t
}

// NewRegistrationResult serializes a registration credential.
func NewRegistrationResult(c *AttestationCredential) RegistrationResult {
	return RegistrationResult{
		ID:    c.ID,
		RawID: Encode(c.RawID),
		Type:  credentialType(c.Type),
		Response: AttestationResponse{
			ClientDataJSON:    Encode(c.ClientDataJSON),
			AttestationObject: Encode(c.AttestationObject),
		},
	}
}

// NewSignResult serializes a sign credential.
func NewSignResult(c *AssertionCredential) SignResult {
	result := SignResult{
		ID:    c.ID,
		RawID: Encode(c.RawID),
		Type:  credentialType(c.Type),
		Response: AssertionResponse{
			ClientDataJSON:    Encode(c.ClientDataJSON),
			AuthenticatorData: Encode(c.AuthenticatorData),
			Signature:         Encode(c.Signature),
		},
	}
	if len(c.UserHandle) > 0 {
		result.Response.UserHandle = Encode(c.UserHandle)
	}
	return result
}

// Coordinator runs ceremonies against an Authenticator.
type Coordinator struct {
	authenticator Authenticator
}

func NewCoordinator(authenticator Authenticator) *Coordinator {
	return &Coordinator{authenticator: authenticator}
}

// Register runs the registration ceremony for server registration options.
func (c *Coordinator) Register(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	creation, err := ParseCreationOptions(options)
	if err != nil {
		return nil, err
	}
	credential, err := c.authenticator.CreateCredential(ctx, creation)
	if err != nil {
		log.Warn().Err(err).Str("rp", creation.RelyingParty.ID).Msg("registration ceremony failed")
		return nil, apperrors.New(apperrors.KindCeremony, "create credential", err)
	}
	if credential.ID == "" {
		credential.ID = Encode(credential.RawID)
	}
	return marshal("create credential", NewRegistrationResult(credential))
}

// Sign runs the assertion ceremony for server sign options.
func (c *Coordinator) Sign(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	request, err := ParseRequestOptions(options)
	if err != nil {
		return nil, err
	}
	credential, err := c.authenticator.GetCredential(ctx, request)
	if err != nil {
		log.Warn().Err(err).Str("rp", request.RelyingPartyID).Msg("sign ceremony failed")
		return nil, apperrors.New(apperrors.KindCeremony, "get credential", err)
	}
	if credential.ID == "" {
		credential.ID = Encode(credential.RawID)
	}
	return marshal("get credential", NewSignResult(credential))
}

func marshal(op string, v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, op, err)
	}
	return raw, nil
}
