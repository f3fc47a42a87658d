package ceremony

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

// VirtualAuthenticator is a software authenticator holding EC2 credentials in memory.
// It stands in for platform hardware in the headless driver and in tests.
type VirtualAuthenticator struct {
	origin string

	mu            sync.Mutex
	authenticator virtualwebauthn.Authenticator
	credentials   map[string]virtualwebauthn.Credential
}

var _ Authenticator = (*VirtualAuthenticator)(nil)

// NewVirtualAuthenticator creates an authenticator whose client data carries origin.
// An empty origin becomes https://{rpId} for each ceremony.
func NewVirtualAuthenticator(origin string) *VirtualAuthenticator {
	return &VirtualAuthenticator{
		origin:        origin,
		authenticator: virtualwebauthn.NewAuthenticator(),
		credentials:   map[string]virtualwebauthn.Credential{},
	}
}

func (v *VirtualAuthenticator) relyingParty(id, name string) virtualwebauthn.RelyingParty {
	origin := v.origin
	if origin == "" {
		origin = "https://" + id
	}
	return virtualwebauthn.RelyingParty{ID: id, Name: name, Origin: origin}
}

func (v *VirtualAuthenticator) CreateCredential(ctx context.Context, options *CreationOptions) (*AttestationCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCeremonyCancelled, err)
	}

	params := make([]protocol.CredentialParameter, 0, len(options.PubKeyCredParams))
	for _, p := range options.PubKeyCredParams {
		params = append(params, protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: webauthncose.COSEAlgorithmIdentifier(p.Alg),
		})
	}
	creation := protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			ID:               options.RelyingParty.ID,
			CredentialEntity: protocol.CredentialEntity{Name: options.RelyingParty.Name},
		},
		User: protocol.UserEntity{
			ID:               protocol.URLEncodedBase64(options.User.ID),
			DisplayName:      options.User.DisplayName,
			CredentialEntity: protocol.CredentialEntity{Name: options.User.Name},
		},
		Challenge:             protocol.URLEncodedBase64(options.Challenge),
		Parameters:            params,
		Timeout:               options.Timeout,
		CredentialExcludeList: descriptors(options.ExcludeCredentials),
	}
	optionsJSON, err := json.Marshal(creation)
	if err != nil {
		return nil, err
	}
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	if err != nil {
		return nil, fmt.Errorf("virtual authenticator rejected options: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, excluded := range options.ExcludeCredentials {
		if _, ok := v.credentials[Encode(excluded)]; ok {
			return nil, fmt.Errorf("authenticator already holds an excluded credential")
		}
	}
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	response := virtualwebauthn.CreateAttestationResponse(
		v.relyingParty(options.RelyingParty.ID, options.RelyingParty.Name), v.authenticator, credential, *parsed)
	v.authenticator.AddCredential(credential)
	v.credentials[Encode(credential.ID)] = credential

	var wire RegistrationResult
	if err := json.Unmarshal([]byte(response), &wire); err != nil {
		return nil, err
	}
	clientData, err := Decode(wire.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	attestationObject, err := Decode(wire.Response.AttestationObject)
	if err != nil {
		return nil, err
	}
	return &AttestationCredential{
		ID:                Encode(credential.ID),
		RawID:             credential.ID,
		Type:              wire.Type,
		ClientDataJSON:    clientData,
		AttestationObject: attestationObject,
	}, nil
}

func (v *VirtualAuthenticator) GetCredential(ctx context.Context, options *RequestOptions) (*AssertionCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCeremonyCancelled, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	var (
		credential virtualwebauthn.Credential
		found      bool
	)
	for _, id := range options.AllowCredentials {
		if credential, found = v.credentials[Encode(id)]; found {
			break
		}
	}
	if !found {
		return nil, apperrors.ErrUnknownCredential
	}

	request := protocol.PublicKeyCredentialRequestOptions{
		Challenge:          protocol.URLEncodedBase64(options.Challenge),
		Timeout:            options.Timeout,
		RelyingPartyID:     options.RelyingPartyID,
		AllowedCredentials: descriptors(options.AllowCredentials),
	}
	optionsJSON, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	if err != nil {
		return nil, fmt.Errorf("virtual authenticator rejected options: %w", err)
	}
	response := virtualwebauthn.CreateAssertionResponse(
		v.relyingParty(options.RelyingPartyID, options.RelyingPartyID), v.authenticator, credential, *parsed)

	var wire SignResult
	if err := json.Unmarshal([]byte(response), &wire); err != nil {
		return nil, err
	}
	result := &AssertionCredential{ID: Encode(credential.ID), RawID: credential.ID, Type: wire.Type}
	for _, field := range []struct {
		in  string
		out *[]byte
	}{
		{wire.Response.ClientDataJSON, &result.ClientDataJSON},
		{wire.Response.AuthenticatorData, &result.AuthenticatorData},
		{wire.Response.Signature, &result.Signature},
		{wire.Response.UserHandle, &result.UserHandle},
	} {
		if *field.out, err = Decode(field.in); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Credentials returns the base64url ids of every credential created so far.
func (v *VirtualAuthenticator) Credentials() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]string, 0, len(v.credentials))
	for id := range v.credentials {
		ids = append(ids, id)
	}
	return ids
}

func descriptors(ids [][]byte) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: protocol.URLEncodedBase64(id),
		})
	}
	return out
}
