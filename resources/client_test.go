package resources_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ranierimazili/o2b2-fido-client/assertion"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/resources"
	"github.com/ranierimazili/o2b2-fido-client/transport"
	"github.com/stretchr/testify/require"
)

const testSubject = "CN=tpp.example.com,O=Example TPP"

type recorded struct {
	Path   string
	Header http.Header
	Claims jwt.MapClaims
}

type testFixture struct {
	server   *httptest.Server
	client   *resources.Client
	key      *rsa.PrivateKey
	mu       sync.Mutex
	requests []recorded
	status   int
	response map[string]any
}

func setupTestFixture(t *testing.T, status int, response map[string]any) *testFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &testFixture{key: key, status: status, response: response}
	f.server = httptest.NewTLSServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)

	signer := assertion.NewKeyPairSigner("kid", "org-1", key)
	f.client = resources.New(transport.NewIdentity(f.server.Client(), testSubject), signer, f.server.URL+"/")
	return f
}

func (f *testFixture) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	claims := jwt.MapClaims{}
	_, _, _ = jwt.NewParser().ParseUnverified(string(body), claims)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{Path: r.URL.Path, Header: r.Header.Clone(), Claims: claims})
	status, response := f.status, f.response
	f.mu.Unlock()

	if response == nil {
		w.WriteHeader(status)
		return
	}
	signed, _ := assertion.NewKeyPairSigner("as-kid", "bank", f.key).SignPayload(map[string]any{"data": response}, "tpp")
	w.Header().Set("Content-Type", resources.ContentTypeJWT)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(signed))
}

func (f *testFixture) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func data(t *testing.T, claims jwt.MapClaims) map[string]any {
	t.Helper()
	d, ok := claims["data"].(map[string]any)
	require.True(t, ok, "signed body has no data claim")
	return d
}

func TestCreateEnrollment(t *testing.T) {
	f := setupTestFixture(t, http.StatusCreated, map[string]any{"enrollmentId": "enr-1", "status": "AWAITING_RISK_SIGNALS"})

	raw, err := f.client.CreateEnrollment(context.Background(), "at-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"enrollmentId":"enr-1","status":"AWAITING_RISK_SIGNALS"}`, string(raw))

	req := f.last(t)
	require.Equal(t, "/open-banking/enrollments/v1/enrollments", req.Path)
	require.Equal(t, "Bearer at-1", req.Header.Get("Authorization"))
	require.Equal(t, resources.ContentTypeJWT, req.Header.Get("Content-Type"))
	require.Equal(t, resources.ContentTypeJWT, req.Header.Get("Accept"))
	require.Equal(t, f.server.URL+"/open-banking/enrollments/v1/enrollments", req.Claims["aud"])
	require.Equal(t, "org-1", req.Claims["iss"])

	d := data(t, req.Claims)
	require.Equal(t, []any{"PAYMENTS_INITIATE"}, d["permissions"])
	require.Equal(t, "11111111111", d["loggedUser"].(map[string]any)["document"].(map[string]any)["identification"])
}

func TestHeadersAreFreshPerCall(t *testing.T) {
	f := setupTestFixture(t, http.StatusNoContent, nil)
	ctx := context.Background()

	require.NoError(t, f.client.SendRiskSignals(ctx, "at", "enr-1"))
	require.NoError(t, f.client.SendRiskSignals(ctx, "at", "enr-1"))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.requests, 2)
	first, second := f.requests[0].Header, f.requests[1].Header
	require.NotEmpty(t, first.Get(resources.HeaderInteractionID))
	require.NotEmpty(t, first.Get(resources.HeaderIdempotencyKey))
	require.NotEqual(t, first.Get(resources.HeaderInteractionID), second.Get(resources.HeaderInteractionID))
	require.NotEqual(t, first.Get(resources.HeaderIdempotencyKey), second.Get(resources.HeaderIdempotencyKey))
	require.NotEqual(t, first.Get(resources.HeaderInteractionID), first.Get(resources.HeaderIdempotencyKey))
}

func TestFidoOptionsCarryRelyingParty(t *testing.T) {
	f := setupTestFixture(t, http.StatusCreated, map[string]any{"challenge": "abc"})
	ctx := context.Background()

	_, err := f.client.FidoRegistrationOptions(ctx, "at", "enr-1", oauthmodel.PlatformBrowser)
	require.NoError(t, err)
	req := f.last(t)
	require.Equal(t, "/open-banking/enrollments/v1/enrollments/enr-1/fido-registration-options", req.Path)
	d := data(t, req.Claims)
	require.Equal(t, testSubject, d["rp"])
	require.Equal(t, "BROWSER", d["platform"])
	require.NotContains(t, d, "consentId")

	_, err = f.client.FidoSignOptions(ctx, "at", "enr-1", "consent-9", oauthmodel.PlatformAndroid)
	require.NoError(t, err)
	d = data(t, f.last(t).Claims)
	require.Equal(t, "consent-9", d["consentId"])
	require.Equal(t, "ANDROID", d["platform"])
}

func TestPaymentConsentAndAuthorization(t *testing.T) {
	resources.NowTimeFunc = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { resources.NowTimeFunc = time.Now })

	f := setupTestFixture(t, http.StatusCreated, map[string]any{"consentId": "consent-1"})
	ctx := context.Background()

	raw, err := f.client.CreatePaymentConsent(ctx, "at")
	require.NoError(t, err)
	require.JSONEq(t, `{"consentId":"consent-1"}`, string(raw))
	req := f.last(t)
	require.Equal(t, "/open-banking/payments/v4/consents", req.Path)
	payment := data(t, req.Claims)["payment"].(map[string]any)
	require.Equal(t, "2024-03-01", payment["date"])
	require.Equal(t, "100.00", payment["amount"])
	require.Equal(t, "PIX", payment["type"])

	f.mu.Lock()
	f.status, f.response = http.StatusNoContent, nil
	f.mu.Unlock()
	assertionJSON := json.RawMessage(`{"id":"cred","response":{"signature":"sig"}}`)
	require.NoError(t, f.client.AuthorizeConsent(ctx, "at", "enr-1", "consent-1", assertionJSON))
	req = f.last(t)
	require.Equal(t, "/open-banking/enrollments/v1/consents/consent-1/authorise", req.Path)
	d := data(t, req.Claims)
	require.Equal(t, "enr-1", d["enrollmentId"])
	require.Equal(t, "cred", d["fidoAssertion"].(map[string]any)["id"])
	require.NotEmpty(t, d["riskSignals"].(map[string]any)["deviceId"])
}

func TestUnexpectedStatus(t *testing.T) {
	tests := []struct {
		name string
		call func(c *resources.Client) error
	}{
		{"enrollment", func(c *resources.Client) error {
			_, err := c.CreateEnrollment(context.Background(), "at")
			return err
		}},
		{"risk signals", func(c *resources.Client) error {
			return c.SendRiskSignals(context.Background(), "at", "enr")
		}},
		{"fido registration", func(c *resources.Client) error {
			return c.RegisterFido(context.Background(), "at", "enr", json.RawMessage(`{}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, http.StatusUnprocessableEntity, map[string]any{"errors": []any{}})
			err := tt.call(f.client)
			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, apperrors.KindHTTPStatus, appErr.Kind)
			require.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
			require.NotEmpty(t, appErr.Body)
		})
	}
}
