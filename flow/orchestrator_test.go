package flow_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/ranierimazili/o2b2-fido-client/assertion"
	"github.com/ranierimazili/o2b2-fido-client/authserver"
	"github.com/ranierimazili/o2b2-fido-client/ceremony"
	"github.com/ranierimazili/o2b2-fido-client/directory"
	"github.com/ranierimazili/o2b2-fido-client/flow"
	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/internal/fakeecosystem"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/resources"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const redirectURI = "https://tpp.example.com/cb"

type testFixture struct {
	fake        *fakeecosystem.Ecosystem
	repo        *flowstore.InMemoryRepo
	orch        *flow.Orchestrator
	coordinator *ceremony.Coordinator
}

func setupTestFixture(t *testing.T, opts flow.Options) *testFixture {
	t.Helper()
	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	decryptionKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fake := fakeecosystem.New(t, fakeecosystem.Options{
		ClientSigningKey:     &signingKey.PublicKey,
		IDTokenEncryptionKey: &decryptionKey.PublicKey,
	})
	identity := fake.Identity()
	signer := assertion.NewKeyPairSigner("kid", "org-1", signingKey)

	repo := flowstore.NewInMemoryRepo()
	t.Cleanup(func() { _ = repo.Close() })

	orch := flow.NewOrchestrator(flow.Services{
		Directory: directory.New(identity, directory.Config{
			TokenURL:            fake.DirectoryTokenURL(),
			AssertionHost:       fake.DirectoryHost(),
			ClientID:            "directory-client",
			OrganisationID:      "org-1",
			SoftwareStatementID: "ss-1",
		}),
		AuthorizationServer: authserver.New(identity, signer, authserver.Config{
			DiscoveryEndpoint:    fake.DiscoveryEndpoint(),
			KeystoreHost:         "https://keystore.example.com",
			OrganisationID:       "org-1",
			SoftwareStatementID:  "ss-1",
			RedirectURIs:         []string{redirectURI},
			IDTokenDecryptionKey: decryptionKey,
		}),
		Resources: resources.New(identity, signer, fake.ResourceHost()),
		Sessions:  repo,
	}, opts)

	return &testFixture{
		fake:        fake,
		repo:        repo,
		orch:        orch,
		coordinator: ceremony.NewCoordinator(ceremony.NewVirtualAuthenticator("https://localhost")),
	}
}

func requireSucceeded(t *testing.T, results []oauthmodel.StepResult) {
	t.Helper()
	for _, r := range results {
		require.True(t, r.Success, "%s failed: %s", r.Message, r.Details)
	}
	require.NotEmpty(t, results)
}

func last(results []oauthmodel.StepResult) oauthmodel.StepResult {
	return results[len(results)-1]
}

func (f *testFixture) session(t *testing.T, id string) *flowstore.FlowSession {
	t.Helper()
	session, err := f.orch.Session(context.Background(), id)
	require.NoError(t, err)
	return session
}

// bind runs register, step 1 and the callback with code.
func (f *testFixture) bind(t *testing.T, id, code string) {
	t.Helper()
	ctx := context.Background()
	requireSucceeded(t, f.orch.Register(ctx, id))
	results := f.orch.BindStep1(ctx, id)
	requireSucceeded(t, results)

	redirect, err := url.Parse(last(results).Redirect)
	require.NoError(t, err)
	issued, state, err := f.fake.IssueCode(redirect.Query().Get("request_uri"), code)
	require.NoError(t, err)
	require.Equal(t, id, state)
	require.NoError(t, f.orch.Callback(ctx, oauthmodel.CallbackPayload{State: state, Code: issued}))
}

// deviceBound runs the whole device binding sequence for id.
func (f *testFixture) deviceBound(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	f.bind(t, id, "")
	requireSucceeded(t, f.orch.BindStep2(ctx, id, oauthmodel.PlatformBrowser))
	credential, err := f.coordinator.Register(ctx, f.session(t, id).RegistrationOptions)
	require.NoError(t, err)
	requireSucceeded(t, f.orch.BindStep3(ctx, id, credential))
}

func TestHappyPath(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()

	results := f.orch.Register(ctx, "f1")
	requireSucceeded(t, results)
	require.Len(t, results, 3)
	session := f.session(t, "f1")
	require.Equal(t, flowstore.StateRegistered, session.State)
	clientID := session.RegisteredClient.ClientID
	require.NotEmpty(t, clientID)
	require.Contains(t, last(results).Details, clientID)

	results = f.orch.BindStep1(ctx, "f1")
	requireSucceeded(t, results)
	redirect, err := url.Parse(last(results).Redirect)
	require.NoError(t, err)
	require.Equal(t, clientID, redirect.Query().Get("client_id"))
	requestURI := redirect.Query().Get("request_uri")
	require.NotEmpty(t, requestURI)
	require.Equal(t, flowstore.StateAwaitingCallback, f.session(t, "f1").State)

	code, state, err := f.fake.IssueCode(requestURI, "CODE123")
	require.NoError(t, err)
	require.NoError(t, f.orch.Callback(ctx, oauthmodel.CallbackPayload{State: state, Code: code}))
	require.Equal(t, "CODE123", f.session(t, "f1").Callback.Code)

	results = f.orch.BindStep2(ctx, "f1", oauthmodel.PlatformBrowser)
	requireSucceeded(t, results)
	options := last(results).Details
	require.NotEmpty(t, gjson.Get(options, "challenge").String())
	session = f.session(t, "f1")
	require.Equal(t, flowstore.StateCeremonyOptionsIssued, session.State)
	require.Equal(t, "fake-user", session.IDTokenSubject)

	credential, err := f.coordinator.Register(ctx, session.RegistrationOptions)
	require.NoError(t, err)
	results = f.orch.BindStep3(ctx, "f1", credential)
	requireSucceeded(t, results)
	require.Equal(t, flow.MsgRegistrationDone, last(results).Message)
	require.Equal(t, gjson.GetBytes(credential, "id").String(), f.fake.CredentialID(session.Enrollment.ID))

	results = f.orch.PaymentStep1(ctx, "f1", oauthmodel.PlatformBrowser)
	requireSucceeded(t, results)
	session = f.session(t, "f1")
	require.NotEmpty(t, session.PaymentConsent.ID)
	require.NotEmpty(t, gjson.GetBytes(session.SignOptions, "challenge").String())
	require.Equal(t, flowstore.StateConsentCreated, session.State)

	signature, err := f.coordinator.Sign(ctx, session.SignOptions)
	require.NoError(t, err)
	results = f.orch.PaymentStep2(ctx, "f1", signature)
	requireSucceeded(t, results)
	require.Equal(t, flow.MsgConsentAuthorized, last(results).Message)
	require.True(t, f.fake.ConsentAuthorized(session.PaymentConsent.ID))
	require.Equal(t, flowstore.StateConsentAuthorized, f.session(t, "f1").State)
}

func TestBindStep2BeforeCallback(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		results := f.orch.BindStep2(ctx, "nobody", oauthmodel.PlatformBrowser)
		require.Equal(t, []oauthmodel.StepResult{{Message: flow.MsgCallbackPending}}, results)
	})

	t.Run("awaiting callback", func(t *testing.T) {
		requireSucceeded(t, f.orch.Register(ctx, "f2"))
		requireSucceeded(t, f.orch.BindStep1(ctx, "f2"))

		results := f.orch.BindStep2(ctx, "f2", oauthmodel.PlatformAndroid)
		require.Len(t, results, 1)
		require.False(t, results[0].Success)
		require.Equal(t, flow.MsgCallbackPending, results[0].Message)
		require.Equal(t, flowstore.StateAwaitingCallback, f.session(t, "f2").State)
	})

	t.Run("retry hint wins over a bad platform", func(t *testing.T) {
		for _, platform := range []oauthmodel.Platform{"", "WINDOWS"} {
			results := f.orch.BindStep2(ctx, "f2", platform)
			require.Equal(t, []oauthmodel.StepResult{{Message: flow.MsgCallbackPending}}, results)
		}
		results := f.orch.BindStep2(ctx, "nobody", "")
		require.Equal(t, []oauthmodel.StepResult{{Message: flow.MsgCallbackPending}}, results)
	})
}

func TestRejectedTransitions(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()
	requireSucceeded(t, f.orch.Register(ctx, "f3"))

	tests := []struct {
		name string
		run  func() []oauthmodel.StepResult
	}{
		{"bind step 3 before options", func() []oauthmodel.StepResult {
			return f.orch.BindStep3(ctx, "f3", json.RawMessage(`{}`))
		}},
		{"payment before binding", func() []oauthmodel.StepResult {
			return f.orch.PaymentStep1(ctx, "f3", oauthmodel.PlatformIOS)
		}},
		{"authorise without consent", func() []oauthmodel.StepResult {
			return f.orch.PaymentStep2(ctx, "f3", json.RawMessage(`{}`))
		}},
		{"bind step 1 without registration", func() []oauthmodel.StepResult {
			return f.orch.BindStep1(ctx, "unregistered")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := tt.run()
			require.Len(t, results, 1)
			require.False(t, results[0].Success)
			require.Equal(t, string(apperrors.KindInvalidState), gjson.Get(results[0].Details, "kind").String())
		})
	}
	require.Equal(t, flowstore.StateRegistered, f.session(t, "f3").State)

	t.Run("callback is ignored outside the callback window", func(t *testing.T) {
		err := f.orch.Callback(ctx, oauthmodel.CallbackPayload{State: "f3", Code: "x"})
		require.ErrorIs(t, err, apperrors.ErrInvalidState)
		require.Nil(t, f.session(t, "f3").Callback)

		err = f.orch.Callback(ctx, oauthmodel.CallbackPayload{State: "unknown", Code: "x"})
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		require.Equal(t, 1, f.repo.Len())
	})
}

func TestInvalidPlatform(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()
	f.bind(t, "f4", "")

	results := f.orch.BindStep2(ctx, "f4", "WINDOWS")
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Equal(t, string(apperrors.KindInvalidRequest), gjson.Get(results[0].Details, "kind").String())
	require.Equal(t, flowstore.StateCallbackReceived, f.session(t, "f4").State)
}

func TestFailureAbortsRemainingCalls(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()

	t.Run("register", func(t *testing.T) {
		f.fake.FailNext("ssa", http.StatusInternalServerError)
		results := f.orch.Register(ctx, "f5")
		require.Len(t, results, 2)
		require.True(t, results[0].Success)
		require.False(t, results[1].Success)
		require.Equal(t, "500", gjson.Get(results[1].Details, "status").String())

		_, err := f.orch.Session(ctx, "f5")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("bind step 1 keeps the enrollment", func(t *testing.T) {
		requireSucceeded(t, f.orch.Register(ctx, "f5"))
		f.fake.FailNext("risk-signals", http.StatusUnprocessableEntity)
		results := f.orch.BindStep1(ctx, "f5")
		require.Len(t, results, 3)
		require.False(t, last(results).Success)
		require.Empty(t, last(results).Redirect)

		session := f.session(t, "f5")
		require.Equal(t, flowstore.StateEnrolled, session.State)
		require.NotEmpty(t, session.Enrollment.ID)

		requireSucceeded(t, f.orch.BindStep1(ctx, "f5"))
		require.Equal(t, flowstore.StateAwaitingCallback, f.session(t, "f5").State)
	})
}

func TestBindStep3RejectsForeignCredential(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()
	f.bind(t, "f6", "")
	requireSucceeded(t, f.orch.BindStep2(ctx, "f6", oauthmodel.PlatformBrowser))

	other, err := ceremony.NewCoordinator(ceremony.NewVirtualAuthenticator("https://localhost")).Register(ctx,
		json.RawMessage(`{"challenge":"b3RoZXItY2hhbGxlbmdl","rp":{"id":"localhost","name":"x"},"user":{"id":"u","name":"u","displayName":"u"},"pubKeyCredParams":[{"type":"public-key","alg":-7}]}`))
	require.NoError(t, err)

	results := f.orch.BindStep3(ctx, "f6", other)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Equal(t, string(apperrors.KindCeremony), gjson.Get(results[0].Details, "kind").String())
	require.Equal(t, flowstore.StateCeremonyOptionsIssued, f.session(t, "f6").State)
}

func TestRefreshKeepsTokensRotating(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ctx := context.Background()
	f.deviceBound(t, "f7")
	first := f.session(t, "f7").Tokens.GetRefreshToken()

	requireSucceeded(t, f.orch.PaymentStep1(ctx, "f7", oauthmodel.PlatformBrowser))
	signature, err := f.coordinator.Sign(ctx, f.session(t, "f7").SignOptions)
	require.NoError(t, err)
	requireSucceeded(t, f.orch.PaymentStep2(ctx, "f7", signature))
	require.NotEqual(t, first, f.session(t, "f7").Tokens.GetRefreshToken())

	t.Run("a second payment reuses the binding", func(t *testing.T) {
		requireSucceeded(t, f.orch.PaymentStep1(ctx, "f7", oauthmodel.PlatformBrowser))
		signature, err := f.coordinator.Sign(ctx, f.session(t, "f7").SignOptions)
		require.NoError(t, err)
		requireSucceeded(t, f.orch.PaymentStep2(ctx, "f7", signature))
	})
}

func TestFixedPKCE(t *testing.T) {
	f := setupTestFixture(t, flow.Options{FixedPKCE: true})
	ctx := context.Background()
	f.bind(t, "f8", "")

	session := f.session(t, "f8")
	require.Equal(t, authserver.FixedCodeVerifier, session.CodeVerifier)
	require.Equal(t, authserver.FixedCodeChallenge, session.CodeChallenge)
	require.Equal(t, authserver.FixedNonce, session.Nonce)
	requireSucceeded(t, f.orch.BindStep2(ctx, "f8", oauthmodel.PlatformBrowser))
}

func TestRandomPKCEPerFlow(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	f.bind(t, "a", "")
	f.bind(t, "b", "")

	a, b := f.session(t, "a"), f.session(t, "b")
	require.NotEqual(t, a.CodeVerifier, b.CodeVerifier)
	require.NotEqual(t, a.Nonce, b.Nonce)
	require.NotEqual(t, authserver.FixedCodeVerifier, a.CodeVerifier)
}

func TestFlowsAreIsolated(t *testing.T) {
	f := setupTestFixture(t, flow.Options{})
	ids := []string{"p1", "p2", "p3", "p4"}

	t.Run("concurrent bindings", func(t *testing.T) {
		for _, id := range ids {
			t.Run(id, func(t *testing.T) {
				t.Parallel()
				f.deviceBound(t, id)
			})
		}
	})

	clients := map[string]bool{}
	for _, id := range ids {
		session := f.session(t, id)
		require.Equal(t, flowstore.StateDeviceBound, session.State)
		require.Equal(t, id, session.Callback.State)
		clients[session.RegisteredClient.ClientID] = true
	}
	require.Len(t, clients, len(ids))
}
