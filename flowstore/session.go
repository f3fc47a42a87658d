// Package flowstore keeps the per-flow session that threads protocol state
// across independently called orchestrator steps.
package flowstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
)

// State is the position of a flow in the device binding and payment sequence
type State string

const (
	StateUnregistered          State = "UNREGISTERED"
	StateRegistered            State = "REGISTERED"
	StateEnrolled              State = "ENROLLED"
	StatePARIssued             State = "PAR_ISSUED"
	StateAwaitingCallback      State = "AWAITING_CALLBACK"
	StateCallbackReceived      State = "CALLBACK_RECEIVED"
	StateTokenExchanged        State = "TOKEN_EXCHANGED"
	StateCeremonyOptionsIssued State = "CEREMONY_OPTIONS_ISSUED"
	StateDeviceBound           State = "DEVICE_BOUND"
	StateConsentCreated        State = "CONSENT_CREATED"
	StateConsentAuthorized     State = "CONSENT_AUTHORIZED"
)

// Resource is a payload returned by a resource API together with its extracted id
type Resource struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"raw"`
}

// FlowSession accumulates everything a flow learned so far. Later steps only
// add or overwrite fields.
type FlowSession struct {
	ID                  string                       `json:"id"`
	State               State                        `json:"state"`
	RegisteredClient    *oauthmodel.RegisteredClient `json:"registeredClient,omitempty"`
	Enrollment          *Resource                    `json:"enrollment,omitempty"`
	CodeVerifier        string                       `json:"codeVerifier,omitempty"`
	CodeChallenge       string                       `json:"codeChallenge,omitempty"`
	Nonce               string                       `json:"nonce,omitempty"`
	PAR                 *oauthmodel.PARResponse      `json:"par,omitempty"`
	Redirect            string                       `json:"redirect,omitempty"`
	Callback            *oauthmodel.CallbackPayload  `json:"callback,omitempty"`
	Tokens              *oauthmodel.TokenResponse    `json:"tokens,omitempty"`
	RegistrationOptions json.RawMessage              `json:"registrationOptions,omitempty"`
	PaymentConsent      *Resource                    `json:"paymentConsent,omitempty"`
	SignOptions         json.RawMessage              `json:"signOptions,omitempty"`
	IDTokenSubject      string                       `json:"idTokenSubject,omitempty"`
	CreatedAt           time.Time                    `json:"createdAt"`
	UpdatedAt           time.Time                    `json:"updatedAt"`
}

// Repo stores flow sessions by flow id
type Repo interface {
	// Get returns ErrSessionNotFound when no live session exists for id
	Get(ctx context.Context, id string) (*FlowSession, error)
	// Put replaces the session stored for id
	Put(ctx context.Context, id string, session *FlowSession) error
	Delete(ctx context.Context, id string) error
}

func encode(session *FlowSession) ([]byte, error) {
	return json.Marshal(session)
}

func decode(data []byte) (*FlowSession, error) {
	session := &FlowSession{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, err
	}
	return session, nil
}
