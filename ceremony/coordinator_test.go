package ceremony_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/ranierimazili/o2b2-fido-client/ceremony"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	registrationChallenge = "dGhpcy1pcy1hLXJlZ2lzdHJhdGlvbi1jaGFsbGVuZ2U"
	signChallenge         = "c2lnbi1jaGFsbGVuZ2UtYnl0ZXM"
)

func registrationOptions() json.RawMessage {
	return json.RawMessage(`{
		"enrollmentId": "enr-1",
		"challenge": "` + registrationChallenge + `",
		"rp": {"id": "localhost", "name": "Bank"},
		"user": {"id": "user+/handle", "name": "11111111111", "displayName": "User"},
		"pubKeyCredParams": [{"type": "public-key", "alg": -7}, {"type": "public-key", "alg": -257}],
		"authenticatorSelection": {"userVerification": "preferred"},
		"timeout": 60000,
		"attestation": "none"
	}`)
}

func signOptions(credentialID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"challenge": %q,
		"rpId": "localhost",
		"allowCredentials": [{"type": "public-key", "id": %q}],
		"userVerification": "preferred"
	}`, signChallenge, credentialID))
}

func TestParseCreationOptions(t *testing.T) {
	opts, err := ceremony.ParseCreationOptions(registrationOptions())
	require.NoError(t, err)
	require.Equal(t, []byte("this-is-a-registration-challenge"), opts.Challenge)
	require.Equal(t, []byte("user+/handle"), opts.User.ID)
	require.Equal(t, "localhost", opts.RelyingParty.ID)
	require.Len(t, opts.PubKeyCredParams, 2)
	require.Equal(t, -257, opts.PubKeyCredParams[1].Alg)
	require.Equal(t, "preferred", opts.AuthenticatorSelection.UserVerification)
	require.Equal(t, 60000, opts.Timeout)

	_, err = ceremony.ParseCreationOptions(json.RawMessage(`{"rp":{}}`))
	require.Equal(t, apperrors.KindDecode, apperrors.KindOf(err))
}

func TestParseRequestOptions(t *testing.T) {
	opts, err := ceremony.ParseRequestOptions(signOptions("Y3JlZC0x"))
	require.NoError(t, err)
	require.Equal(t, []byte("sign-challenge-bytes"), opts.Challenge)
	require.Equal(t, [][]byte{[]byte("cred-1")}, opts.AllowCredentials)
	require.Equal(t, "localhost", opts.RelyingPartyID)
}

func TestVirtualAuthenticatorCeremonies(t *testing.T) {
	ctx := context.Background()
	authenticator := ceremony.NewVirtualAuthenticator("https://localhost")
	coordinator := ceremony.NewCoordinator(authenticator)

	registration, err := coordinator.Register(ctx, registrationOptions())
	require.NoError(t, err)
	credentialID := gjson.GetBytes(registration, "id").String()
	require.NotEmpty(t, credentialID)
	require.Equal(t, credentialID, gjson.GetBytes(registration, "rawId").String())
	require.Equal(t, "public-key", gjson.GetBytes(registration, "type").String())
	require.NotEmpty(t, gjson.GetBytes(registration, "response.attestationObject").String())
	require.Equal(t, []string{credentialID}, authenticator.Credentials())

	require.NoError(t, ceremony.ValidateRegistration(registration, registrationChallenge))
	err = ceremony.ValidateRegistration(registration, signChallenge)
	require.Equal(t, apperrors.KindCeremony, apperrors.KindOf(err))
	err = ceremony.ValidateRegistration(json.RawMessage(`{"id":"stub"}`), registrationChallenge)
	require.Equal(t, apperrors.KindInvalidRequest, apperrors.KindOf(err), "a malformed credential is a bad request")

	signature, err := coordinator.Sign(ctx, signOptions(credentialID))
	require.NoError(t, err)
	require.Equal(t, credentialID, gjson.GetBytes(signature, "id").String())
	require.NotEmpty(t, gjson.GetBytes(signature, "response.signature").String())
	require.NotEmpty(t, gjson.GetBytes(signature, "response.authenticatorData").String())

	require.NoError(t, ceremony.ValidateAssertion(signature, signChallenge))
	err = ceremony.ValidateAssertion(registration, registrationChallenge)
	require.Error(t, err, "a registration credential is not an assertion")
	err = ceremony.ValidateAssertion(signature, registrationChallenge)
	require.Equal(t, apperrors.KindCeremony, apperrors.KindOf(err))
}

func TestSignWithUnknownCredential(t *testing.T) {
	coordinator := ceremony.NewCoordinator(ceremony.NewVirtualAuthenticator(""))

	_, err := coordinator.Sign(context.Background(), signOptions("dW5rbm93bg"))
	require.Equal(t, apperrors.KindCeremony, apperrors.KindOf(err))
	require.ErrorIs(t, err, apperrors.ErrUnknownCredential)
}

type refusingAuthenticator struct {
	err error
}

func (a refusingAuthenticator) CreateCredential(context.Context, *ceremony.CreationOptions) (*ceremony.AttestationCredential, error) {
	return nil, a.err
}

func (a refusingAuthenticator) GetCredential(context.Context, *ceremony.RequestOptions) (*ceremony.AssertionCredential, error) {
	return nil, a.err
}

func TestCeremonyFailuresSurface(t *testing.T) {
	coordinator := ceremony.NewCoordinator(refusingAuthenticator{err: apperrors.ErrCeremonyCancelled})

	_, err := coordinator.Register(context.Background(), registrationOptions())
	require.ErrorIs(t, err, apperrors.ErrCeremonyCancelled)
	require.Equal(t, apperrors.KindCeremony, apperrors.KindOf(err))

	_, err = coordinator.Sign(context.Background(), signOptions("Y3JlZC0x"))
	require.ErrorIs(t, err, apperrors.ErrCeremonyCancelled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ceremony.NewCoordinator(ceremony.NewVirtualAuthenticator("")).Register(ctx, registrationOptions())
	require.True(t, errors.Is(err, apperrors.ErrCeremonyCancelled))
	require.ErrorIs(t, err, context.Canceled)
}

type fixedAuthenticator struct{}

func (fixedAuthenticator) CreateCredential(context.Context, *ceremony.CreationOptions) (*ceremony.AttestationCredential, error) {
	return &ceremony.AttestationCredential{
		RawID:             []byte{0xfb, 0xff},
		ClientDataJSON:    []byte("{}"),
		AttestationObject: []byte{0xfb, 0xff, 0xbf},
	}, nil
}

func (fixedAuthenticator) GetCredential(context.Context, *ceremony.RequestOptions) (*ceremony.AssertionCredential, error) {
	return &ceremony.AssertionCredential{
		ID:                "cred",
		RawID:             []byte("cred"),
		ClientDataJSON:    []byte("{}"),
		AuthenticatorData: []byte{1},
		Signature:         []byte{2},
	}, nil
}

func TestResultSerialization(t *testing.T) {
	coordinator := ceremony.NewCoordinator(fixedAuthenticator{})

	registration, err := coordinator.Register(context.Background(), registrationOptions())
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"-_8","rawId":"-_8","type":"public-key","response":{"clientDataJSON":"e30","attestationObject":"-_-_"}}`, string(registration))

	signature, err := coordinator.Sign(context.Background(), signOptions("Y3JlZA"))
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"cred","rawId":"Y3JlZA","type":"public-key","response":{"clientDataJSON":"e30","authenticatorData":"AQ","signature":"Ag"}}`, string(signature))
}
