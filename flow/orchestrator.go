// Package flow drives one flow id through dynamic client registration, device
// binding and payment consent authorization. Each step is a sequence of
// protocol calls; the first failing call ends the step and the caller gets the
// audit trail of the calls made so far.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/authserver"
	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/internal/metrics"
	"github.com/ranierimazili/o2b2-fido-client/internal/utils"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

// Messages of the step results that callers look for
const (
	MsgCallbackPending    = "authorization code not received yet, retrying in 5 seconds"
	MsgRegistrationDone   = "registration succeeded"
	MsgConsentAuthorized  = "consent authorized"
	MsgRegistrationFailed = "device registration failed"
	MsgAuthorizationFail  = "consent authorization failed"
)

// Directory obtains the software statement assertion.
type Directory interface {
	Token(ctx context.Context) (*oauthmodel.TokenResponse, error)
	SoftwareStatementAssertion(ctx context.Context, accessToken string) (string, error)
}

// AuthorizationServer is the subset of the authorization server client the flow uses.
type AuthorizationServer interface {
	Register(ctx context.Context, ssa string) (*oauthmodel.RegisteredClient, error)
	ClientCredentialsToken(ctx context.Context, clientID string) (*oauthmodel.TokenResponse, error)
	PushAuthorizationRequest(ctx context.Context, registered *oauthmodel.RegisteredClient, par authserver.PARRequest) (*oauthmodel.PARResponse, error)
	AuthorizationURL(ctx context.Context, clientID, requestURI string) (string, error)
	ExchangeCode(ctx context.Context, registered *oauthmodel.RegisteredClient, code, verifier string) (*oauthmodel.TokenResponse, error)
	Refresh(ctx context.Context, clientID, refreshToken string) (*oauthmodel.TokenResponse, error)
	VerifiesIDTokens() bool
	VerifyIDToken(ctx context.Context, clientID, rawIDToken, nonce string) (*authserver.IDTokenClaims, error)
}

// ResourceAPI is the enrollment and payment API client.
type ResourceAPI interface {
	CreateEnrollment(ctx context.Context, accessToken string) (json.RawMessage, error)
	SendRiskSignals(ctx context.Context, accessToken, enrollmentID string) error
	FidoRegistrationOptions(ctx context.Context, accessToken, enrollmentID string, platform oauthmodel.Platform) (json.RawMessage, error)
	RegisterFido(ctx context.Context, accessToken, enrollmentID string, credential json.RawMessage) error
	FidoSignOptions(ctx context.Context, accessToken, enrollmentID, consentID string, platform oauthmodel.Platform) (json.RawMessage, error)
	CreatePaymentConsent(ctx context.Context, accessToken string) (json.RawMessage, error)
	AuthorizeConsent(ctx context.Context, accessToken, enrollmentID, consentID string, fidoAssertion json.RawMessage) error
}

// Services holds the protocol clients and the session repository
type Services struct {
	Directory           Directory
	AuthorizationServer AuthorizationServer
	Resources           ResourceAPI
	Sessions            flowstore.Repo
}

// Options tune the orchestrator
type Options struct {
	// FixedPKCE uses the legacy constant verifier, challenge and nonce instead of per-flow random values
	FixedPKCE bool
}

type Orchestrator struct {
	directory Directory
	auth      AuthorizationServer
	resources ResourceAPI
	sessions  flowstore.Repo
	locker    *flowstore.Locker
	opts      Options
}

// NowTimeFunc stamps session creation and update times
var NowTimeFunc = time.Now

func NewOrchestrator(services Services, opts Options) *Orchestrator {
	return &Orchestrator{
		directory: services.Directory,
		auth:      services.AuthorizationServer,
		resources: services.Resources,
		sessions:  services.Sessions,
		locker:    flowstore.NewLocker(),
		opts:      opts,
	}
}

// trail collects the results of one step
type trail struct {
	results []oauthmodel.StepResult
}

func (t *trail) ok(message string, details any) {
	t.results = append(t.results, oauthmodel.StepResult{Message: message, Details: detailsOf(details), Success: true})
}

func (t *trail) redirect(message string, details any, redirect string) {
	t.results = append(t.results, oauthmodel.StepResult{
		Message:  message,
		Details:  detailsOf(details),
		Success:  true,
		Redirect: redirect,
	})
}

func (t *trail) fail(message string, err error) {
	t.results = append(t.results, oauthmodel.StepResult{Message: message, Details: errorDetails(err), Success: false})
}

func detailsOf(v any) string {
	if v == nil {
		return ""
	}
	return utils.PrettyJSON(v)
}

func errorDetails(err error) string {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.KindInternal, "", err)
	}
	return utils.PrettyJSON(appErr)
}

// run serialises step for id, loads its session and records metrics for the outcome.
func (o *Orchestrator) run(ctx context.Context, step Step, id string, fn func(ctx context.Context, session *flowstore.FlowSession, t *trail)) []oauthmodel.StepResult {
	start := time.Now()
	t := &trail{}
	defer func() {
		success := oauthmodel.Succeeded(t.results)
		metrics.RecordStep(string(step), success, time.Since(start).Seconds())
		log.Info().
			Str("flow", id).
			Str("step", string(step)).
			Bool("success", success).
			Int("calls", len(t.results)).
			Msg("step finished")
	}()

	if id == "" {
		t.fail("loading flow session", apperrors.New(apperrors.KindInvalidRequest, string(step), apperrors.ErrEmptyFlowID))
		return t.results
	}

	unlock := o.locker.Lock(id)
	defer unlock()

	session, err := o.load(ctx, id)
	if err != nil {
		t.fail("loading flow session", err)
		return t.results
	}
	fn(ctx, session, t)
	return t.results
}

// load returns nil when no session exists for id.
func (o *Orchestrator) load(ctx context.Context, id string) (*flowstore.FlowSession, error) {
	session, err := o.sessions.Get(ctx, id)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindStore, "load flow session", err)
	}
	return session, nil
}

func (o *Orchestrator) save(ctx context.Context, session *flowstore.FlowSession, t *trail) {
	session.UpdatedAt = NowTimeFunc()
	if err := o.sessions.Put(ctx, session.ID, session); err != nil {
		t.fail("saving flow session", apperrors.New(apperrors.KindStore, "save flow session", err))
	}
}

// Session returns a copy of the stored session for id.
func (o *Orchestrator) Session(ctx context.Context, id string) (*flowstore.FlowSession, error) {
	session, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

func rejectTransition(step Step, session *flowstore.FlowSession, t *trail) bool {
	if err := checkTransition(step, stateOf(session)); err != nil {
		t.fail("checking flow state", err)
		return true
	}
	return false
}

func invalidPlatform(step Step, platform oauthmodel.Platform, t *trail) bool {
	if platform.Valid() {
		return false
	}
	t.fail("checking platform", apperrors.New(apperrors.KindInvalidRequest, string(step),
		apperrors.Wrapf(apperrors.ErrInvalidPlatform, "%q", platform)))
	return true
}

// mergeTokens keeps the previous refresh token when the authorization server does not rotate it.
func mergeTokens(previous, next *oauthmodel.TokenResponse) *oauthmodel.TokenResponse {
	if next.RefreshToken == nil && previous != nil {
		next.RefreshToken = previous.RefreshToken
	}
	return next
}

// refresh rotates the session tokens through the refresh_token grant.
func (o *Orchestrator) refresh(ctx context.Context, session *flowstore.FlowSession, t *trail) bool {
	tokens, err := o.auth.Refresh(ctx, session.RegisteredClient.ClientID, session.Tokens.GetRefreshToken())
	if err != nil {
		t.fail("refreshing tokens", err)
		return false
	}
	session.Tokens = mergeTokens(session.Tokens, tokens)
	t.ok("refreshing tokens", tokens)
	return true
}
