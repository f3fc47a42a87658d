package ceremony

import (
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

// ValidateRegistration checks that raw is a well formed registration credential
// created for challenge (base64url).
func ValidateRegistration(raw json.RawMessage, challenge string) error {
	const op = "validate registration credential"
	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal(raw, &ccr); err != nil {
		return apperrors.New(apperrors.KindInvalidRequest, op, err)
	}
	parsed, err := ccr.Parse()
	if err != nil {
		return apperrors.New(apperrors.KindInvalidRequest, op, err)
	}
	return checkClientData(op, parsed.Response.CollectedClientData, protocol.CreateCeremony, challenge)
}

// ValidateAssertion checks that raw is a well formed assertion for challenge (base64url).
func ValidateAssertion(raw json.RawMessage, challenge string) error {
	const op = "validate assertion credential"
	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal(raw, &car); err != nil {
		return apperrors.New(apperrors.KindInvalidRequest, op, err)
	}
	parsed, err := car.Parse()
	if err != nil {
		return apperrors.New(apperrors.KindInvalidRequest, op, err)
	}
	return checkClientData(op, parsed.Response.CollectedClientData, protocol.AssertCeremony, challenge)
}

func checkClientData(op string, clientData protocol.CollectedClientData, ceremony protocol.CeremonyType, challenge string) error {
	if clientData.Type != ceremony {
		return apperrors.New(apperrors.KindCeremony, op, fmt.Errorf("unexpected ceremony type %q", clientData.Type))
	}
	expected, err := Decode(challenge)
	if err != nil {
		return apperrors.New(apperrors.KindCeremony, op, fmt.Errorf("stored challenge: %w", err))
	}
	got, err := Decode(clientData.Challenge)
	if err != nil {
		return apperrors.New(apperrors.KindCeremony, op, fmt.Errorf("client data challenge: %w", err))
	}
	if string(expected) != string(got) {
		return apperrors.New(apperrors.KindCeremony, op, fmt.Errorf("challenge mismatch"))
	}
	return nil
}
