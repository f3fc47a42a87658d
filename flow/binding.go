package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ranierimazili/o2b2-fido-client/authserver"
	"github.com/ranierimazili/o2b2-fido-client/ceremony"
	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// BindStep1 creates the enrollment, sends its risk signals and pushes the
// authorization request. The last result carries the redirect the user agent must follow.
func (o *Orchestrator) BindStep1(ctx context.Context, id string) []oauthmodel.StepResult {
	return o.run(ctx, StepBind1, id, func(ctx context.Context, session *flowstore.FlowSession, t *trail) {
		if rejectTransition(StepBind1, session, t) {
			return
		}
		defer o.save(ctx, session, t)
		client := session.RegisteredClient

		ccToken, err := o.auth.ClientCredentialsToken(ctx, client.ClientID)
		if err != nil {
			t.fail("creating client credentials token", err)
			return
		}
		t.ok("creating client credentials token", ccToken)

		enrollment, err := o.resources.CreateEnrollment(ctx, ccToken.GetAccessToken())
		if err == nil {
			session.Enrollment, err = resourceOf("create enrollment", enrollment, "enrollmentId")
		}
		if err != nil {
			t.fail("creating enrollment", err)
			return
		}
		session.State = flowstore.StateEnrolled
		t.ok("creating enrollment", enrollment)

		if err := o.resources.SendRiskSignals(ctx, ccToken.GetAccessToken(), session.Enrollment.ID); err != nil {
			t.fail("sending risk signals", err)
			return
		}
		t.ok("sending risk signals", nil)

		pkce, nonce := authserver.NewPKCE(), authserver.NewNonce()
		if o.opts.FixedPKCE {
			pkce, nonce = authserver.FixedPKCE(), authserver.FixedNonce
		}
		session.CodeVerifier, session.CodeChallenge, session.Nonce = pkce.Verifier, pkce.Challenge, nonce
		// a new authorization request invalidates any callback of the previous one
		session.Callback = nil

		par, err := o.auth.PushAuthorizationRequest(ctx, client, authserver.PARRequest{
			State:         session.ID,
			EnrollmentID:  session.Enrollment.ID,
			CodeChallenge: pkce.Challenge,
			Nonce:         nonce,
		})
		if err != nil {
			t.fail("pushing authorization request", err)
			return
		}
		session.PAR = par
		session.State = flowstore.StatePARIssued

		redirect, err := o.auth.AuthorizationURL(ctx, client.ClientID, par.RequestURI)
		if err != nil {
			t.fail("pushing authorization request", err)
			return
		}
		session.Redirect = redirect
		session.State = flowstore.StateAwaitingCallback
		t.redirect("pushing authorization request", par, redirect)
	})
}

// Callback stores the authorization response delivered for the flow named by
// its state. Unknown flows and flows that are not waiting for a code are
// ignored; the returned error only says why.
func (o *Orchestrator) Callback(ctx context.Context, payload oauthmodel.CallbackPayload) error {
	id := payload.State
	if id == "" {
		return apperrors.ErrEmptyFlowID
	}
	if payload.Code == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "callback for %s carries no code", id)
	}

	unlock := o.locker.Lock(id)
	defer unlock()

	session, err := o.load(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return apperrors.ErrSessionNotFound
	}
	if err := checkTransition(StepCallback, session.State); err != nil {
		return err
	}

	session.Callback = &payload
	session.State = flowstore.StateCallbackReceived
	session.UpdatedAt = NowTimeFunc()
	if err := o.sessions.Put(ctx, id, session); err != nil {
		return apperrors.New(apperrors.KindStore, "save flow session", err)
	}
	log.Info().Str("flow", id).Msg("authorization code received")
	return nil
}

// BindStep2 exchanges the received code for tokens and requests the FIDO
// registration options. Before a callback arrived it returns a single retry hint.
func (o *Orchestrator) BindStep2(ctx context.Context, id string, platform oauthmodel.Platform) []oauthmodel.StepResult {
	return o.run(ctx, StepBind2, id, func(ctx context.Context, session *flowstore.FlowSession, t *trail) {
		if session == nil || session.Callback == nil {
			t.results = append(t.results, oauthmodel.StepResult{Message: MsgCallbackPending})
			return
		}
		if invalidPlatform(StepBind2, platform, t) {
			return
		}
		if rejectTransition(StepBind2, session, t) {
			return
		}
		defer o.save(ctx, session, t)

		if session.State == flowstore.StateTokenExchanged {
			// the code was already spent
			if !o.refresh(ctx, session, t) {
				return
			}
		} else if !o.exchange(ctx, session, t) {
			return
		}

		options, err := o.resources.FidoRegistrationOptions(ctx, session.Tokens.GetAccessToken(), session.Enrollment.ID, platform)
		if err == nil && !gjson.GetBytes(options, "challenge").Exists() {
			err = apperrors.New(apperrors.KindDecode, "fido registration options", fmt.Errorf("options carry no challenge"))
		}
		if err != nil {
			t.fail("fetching FIDO registration options", err)
			return
		}
		session.RegistrationOptions = options
		session.State = flowstore.StateCeremonyOptionsIssued
		t.ok("fetching FIDO registration options", options)
	})
}

func (o *Orchestrator) exchange(ctx context.Context, session *flowstore.FlowSession, t *trail) bool {
	tokens, err := o.auth.ExchangeCode(ctx, session.RegisteredClient, session.Callback.Code, session.CodeVerifier)
	if err != nil {
		t.fail("exchanging code for tokens", err)
		return false
	}
	session.Tokens = tokens
	session.State = flowstore.StateTokenExchanged
	t.ok("exchanging code for tokens", tokens)

	if !o.auth.VerifiesIDTokens() || tokens.GetIDToken() == "" {
		return true
	}
	claims, err := o.auth.VerifyIDToken(ctx, session.RegisteredClient.ClientID, tokens.GetIDToken(), session.Nonce)
	if err != nil {
		t.fail("verifying id token", err)
		return false
	}
	session.IDTokenSubject = claims.Subject
	t.ok("verifying id token", claims)
	return true
}

// BindStep3 submits the WebAuthn registration credential produced for the stored options.
func (o *Orchestrator) BindStep3(ctx context.Context, id string, credential json.RawMessage) []oauthmodel.StepResult {
	return o.run(ctx, StepBind3, id, func(ctx context.Context, session *flowstore.FlowSession, t *trail) {
		if rejectTransition(StepBind3, session, t) {
			return
		}
		challenge := gjson.GetBytes(session.RegistrationOptions, "challenge").String()
		if err := ceremony.ValidateRegistration(credential, challenge); err != nil {
			t.fail("checking registration credential", err)
			return
		}
		defer o.save(ctx, session, t)

		if !o.refresh(ctx, session, t) {
			return
		}
		if err := o.resources.RegisterFido(ctx, session.Tokens.GetAccessToken(), session.Enrollment.ID, credential); err != nil {
			t.fail(MsgRegistrationFailed, err)
			return
		}
		session.State = flowstore.StateDeviceBound
		t.ok(MsgRegistrationDone, credential)
	})
}

// resourceOf extracts the id named by path from a resource API payload.
func resourceOf(op string, raw json.RawMessage, path string) (*flowstore.Resource, error) {
	id := gjson.GetBytes(raw, path).String()
	if id == "" {
		return nil, apperrors.New(apperrors.KindDecode, op, fmt.Errorf("response carries no %s", path))
	}
	return &flowstore.Resource{ID: id, Raw: raw}, nil
}
