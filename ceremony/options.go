package ceremony

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

type wireDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type wireCreationOptions struct {
	Challenge string       `json:"challenge"`
	RP        RelyingParty `json:"rp"`
	User      struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
	PubKeyCredParams       []CredentialParameter   `json:"pubKeyCredParams"`
	AuthenticatorSelection *AuthenticatorSelection `json:"authenticatorSelection"`
	Timeout                int                     `json:"timeout"`
	Attestation            string                  `json:"attestation"`
	ExcludeCredentials     []wireDescriptor        `json:"excludeCredentials"`
}

type wireRequestOptions struct {
	Challenge        string           `json:"challenge"`
	RPID             string           `json:"rpId"`
	AllowCredentials []wireDescriptor `json:"allowCredentials"`
	Timeout          int              `json:"timeout"`
	UserVerification string           `json:"userVerification"`
}

// ParseCreationOptions converts server registration options to CreationOptions.
// The user id is taken as the raw characters of the string, not base64url decoded.
func ParseCreationOptions(raw json.RawMessage) (*CreationOptions, error) {
	const op = "parse registration options"
	var wire wireCreationOptions
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}
	if wire.Challenge == "" {
		return nil, apperrors.New(apperrors.KindDecode, op, fmt.Errorf("missing challenge"))
	}
	challenge, err := Decode(wire.Challenge)
	if err != nil {
		return nil, err
	}
	exclude, err := decodeDescriptors(wire.ExcludeCredentials)
	if err != nil {
		return nil, err
	}

	return &CreationOptions{
		Challenge:    challenge,
		RelyingParty: wire.RP,
		User: User{
			ID:          []byte(wire.User.ID),
			Name:        wire.User.Name,
			DisplayName: wire.User.DisplayName,
		},
		PubKeyCredParams:       wire.PubKeyCredParams,
		AuthenticatorSelection: wire.AuthenticatorSelection,
		Timeout:                wire.Timeout,
		Attestation:            wire.Attestation,
		ExcludeCredentials:     exclude,
	}, nil
}

// ParseRequestOptions converts server sign options to RequestOptions.
func ParseRequestOptions(raw json.RawMessage) (*RequestOptions, error) {
	const op = "parse sign options"
	var wire wireRequestOptions
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}
	if wire.Challenge == "" {
		return nil, apperrors.New(apperrors.KindDecode, op, fmt.Errorf("missing challenge"))
	}
	challenge, err := Decode(wire.Challenge)
	if err != nil {
		return nil, err
	}
	allow, err := decodeDescriptors(wire.AllowCredentials)
	if err != nil {
		return nil, err
	}

	return &RequestOptions{
		Challenge:        challenge,
		RelyingPartyID:   wire.RPID,
		AllowCredentials: allow,
		Timeout:          wire.Timeout,
		UserVerification: wire.UserVerification,
	}, nil
}

func decodeDescriptors(descriptors []wireDescriptor) ([][]byte, error) {
	ids := make([][]byte, 0, len(descriptors))
	for _, d := range descriptors {
		id, err := Decode(d.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
