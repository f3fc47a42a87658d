// Package resources calls the protected enrollment and payment APIs. Every
// request body is a JWT signed by the organisation and every response body is
// a detached JWT whose data claim carries the logical payload.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/ranierimazili/o2b2-fido-client/assertion"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/transport"
)

// Headers attached to every resource API call
const (
	HeaderInteractionID  = "x-fapi-interaction-id"
	HeaderIdempotencyKey = "x-idempotency-key"
	ContentTypeJWT       = "application/jwt"
)

const (
	enrollmentsPath = "/open-banking/enrollments/v1"
	paymentsPath    = "/open-banking/payments/v4"
)

type Client struct {
	identity   *transport.Identity
	signer     assertion.Signer
	hostPrefix string
}

func New(identity *transport.Identity, signer assertion.Signer, hostPrefix string) *Client {
	return &Client{
		identity:   identity,
		signer:     signer,
		hostPrefix: strings.TrimSuffix(hostPrefix, "/"),
	}
}

// CreateEnrollment creates the enrollment for the fixed payer and returns its data.
func (c *Client) CreateEnrollment(ctx context.Context, accessToken string) (json.RawMessage, error) {
	body, err := c.post(ctx, "create enrollment", accessToken, enrollmentsPath+"/enrollments",
		Envelope{Data: DefaultEnrollment()}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return assertion.DecodeDetached(body)
}

// SendRiskSignals posts the device telemetry for an enrollment.
func (c *Client) SendRiskSignals(ctx context.Context, accessToken, enrollmentID string) error {
	_, err := c.post(ctx, "send risk signals", accessToken, enrollmentPath(enrollmentID, "risk-signals"),
		Envelope{Data: DefaultRiskSignals()}, http.StatusNoContent)
	return err
}

// FidoRegistrationOptions requests WebAuthn creation options for the enrollment.
func (c *Client) FidoRegistrationOptions(ctx context.Context, accessToken, enrollmentID string, platform oauthmodel.Platform) (json.RawMessage, error) {
	req := FidoOptionsRequest{RP: c.identity.Subject(), Platform: platform}
	body, err := c.post(ctx, "fido registration options", accessToken, enrollmentPath(enrollmentID, "fido-registration-options"),
		Envelope{Data: req}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return assertion.DecodeDetached(body)
}

// RegisterFido submits the serialized registration credential.
func (c *Client) RegisterFido(ctx context.Context, accessToken, enrollmentID string, credential json.RawMessage) error {
	_, err := c.post(ctx, "fido registration", accessToken, enrollmentPath(enrollmentID, "fido-registration"),
		Envelope{Data: credential}, http.StatusNoContent)
	return err
}

// FidoSignOptions requests WebAuthn request options bound to a payment consent.
func (c *Client) FidoSignOptions(ctx context.Context, accessToken, enrollmentID, consentID string, platform oauthmodel.Platform) (json.RawMessage, error) {
	req := FidoOptionsRequest{RP: c.identity.Subject(), Platform: platform, ConsentID: consentID}
	body, err := c.post(ctx, "fido sign options", accessToken, enrollmentPath(enrollmentID, "fido-sign-options"),
		Envelope{Data: req}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return assertion.DecodeDetached(body)
}

// CreatePaymentConsent creates the fixed PIX payment consent and returns its data.
func (c *Client) CreatePaymentConsent(ctx context.Context, accessToken string) (json.RawMessage, error) {
	body, err := c.post(ctx, "create payment consent", accessToken, paymentsPath+"/consents",
		Envelope{Data: DefaultPaymentConsent()}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return assertion.DecodeDetached(body)
}

// AuthorizeConsent authorises a payment consent with the enrollment's FIDO assertion.
func (c *Client) AuthorizeConsent(ctx context.Context, accessToken, enrollmentID, consentID string, fidoAssertion json.RawMessage) error {
	req := ConsentAuthorization{
		EnrollmentID:  enrollmentID,
		RiskSignals:   DefaultRiskSignals(),
		FidoAssertion: fidoAssertion,
	}
	_, err := c.post(ctx, "authorize consent", accessToken,
		fmt.Sprintf("%s/consents/%s/authorise", enrollmentsPath, url.PathEscape(consentID)),
		Envelope{Data: req}, http.StatusNoContent)
	return err
}

func enrollmentPath(enrollmentID, action string) string {
	return fmt.Sprintf("%s/enrollments/%s/%s", enrollmentsPath, url.PathEscape(enrollmentID), action)
}

func (c *Client) post(ctx context.Context, op, accessToken, path string, payload any, expected int) ([]byte, error) {
	endpoint := c.hostPrefix + path
	signed, err := c.signer.SignPayload(payload, endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(signed))
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", ContentTypeJWT)
	req.Header.Set("Accept", ContentTypeJWT)
	req.Header.Set(HeaderInteractionID, uuid.NewString())
	req.Header.Set(HeaderIdempotencyKey, uuid.NewString())

	return c.identity.Do(req, op, expected)
}
