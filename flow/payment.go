package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ranierimazili/o2b2-fido-client/ceremony"
	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/tidwall/gjson"
)

// PaymentStep1 creates a payment consent and fetches the FIDO sign options bound to it.
func (o *Orchestrator) PaymentStep1(ctx context.Context, id string, platform oauthmodel.Platform) []oauthmodel.StepResult {
	return o.run(ctx, StepPayment1, id, func(ctx context.Context, session *flowstore.FlowSession, t *trail) {
		if invalidPlatform(StepPayment1, platform, t) || rejectTransition(StepPayment1, session, t) {
			return
		}
		defer o.save(ctx, session, t)

		ccToken, err := o.auth.ClientCredentialsToken(ctx, session.RegisteredClient.ClientID)
		if err != nil {
			t.fail("creating client credentials token", err)
			return
		}
		t.ok("creating client credentials token", ccToken)

		consent, err := o.resources.CreatePaymentConsent(ctx, ccToken.GetAccessToken())
		if err == nil {
			session.PaymentConsent, err = resourceOf("create payment consent", consent, "consentId")
		}
		if err != nil {
			t.fail("creating payment consent", err)
			return
		}
		session.SignOptions = nil
		session.State = flowstore.StateConsentCreated
		t.ok("creating payment consent", consent)

		options, err := o.resources.FidoSignOptions(ctx, ccToken.GetAccessToken(), session.Enrollment.ID, session.PaymentConsent.ID, platform)
		if err == nil && !gjson.GetBytes(options, "challenge").Exists() {
			err = apperrors.New(apperrors.KindDecode, "fido sign options", fmt.Errorf("options carry no challenge"))
		}
		if err != nil {
			t.fail("fetching FIDO sign options", err)
			return
		}
		session.SignOptions = options
		t.ok("fetching FIDO sign options", options)
	})
}

// PaymentStep2 authorises the stored consent with the FIDO assertion made for its sign options.
func (o *Orchestrator) PaymentStep2(ctx context.Context, id string, fidoAssertion json.RawMessage) []oauthmodel.StepResult {
	return o.run(ctx, StepPayment2, id, func(ctx context.Context, session *flowstore.FlowSession, t *trail) {
		if rejectTransition(StepPayment2, session, t) {
			return
		}
		if len(session.SignOptions) == 0 {
			t.fail("checking sign options", apperrors.New(apperrors.KindMissingPrerequisite, string(StepPayment2),
				fmt.Errorf("no sign options stored for consent %s", session.PaymentConsent.ID)))
			return
		}
		challenge := gjson.GetBytes(session.SignOptions, "challenge").String()
		if err := ceremony.ValidateAssertion(fidoAssertion, challenge); err != nil {
			t.fail("checking FIDO assertion", err)
			return
		}
		defer o.save(ctx, session, t)

		if !o.refresh(ctx, session, t) {
			return
		}
		err := o.resources.AuthorizeConsent(ctx, session.Tokens.GetAccessToken(), session.Enrollment.ID, session.PaymentConsent.ID, fidoAssertion)
		if err != nil {
			t.fail(MsgAuthorizationFail, err)
			return
		}
		session.State = flowstore.StateConsentAuthorized
		t.ok(MsgConsentAuthorized, map[string]string{"consentId": session.PaymentConsent.ID})
	})
}
