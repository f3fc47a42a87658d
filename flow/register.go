package flow

import (
	"context"

	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
)

// Register onboards a new client for id: directory token, software statement
// assertion, then dynamic client registration. The session is only created once
// registration succeeds.
func (o *Orchestrator) Register(ctx context.Context, id string) []oauthmodel.StepResult {
	return o.run(ctx, StepRegister, id, func(ctx context.Context, session *flowstore.FlowSession, t *trail) {
		if rejectTransition(StepRegister, session, t) {
			return
		}

		directoryToken, err := o.directory.Token(ctx)
		if err != nil {
			t.fail("creating directory access token", err)
			return
		}
		t.ok("creating directory access token", directoryToken)

		ssa, err := o.directory.SoftwareStatementAssertion(ctx, directoryToken.GetAccessToken())
		if err != nil {
			t.fail("creating software statement assertion", err)
			return
		}
		t.ok("creating software statement assertion", ssa)

		registered, err := o.auth.Register(ctx, ssa)
		if err != nil {
			t.fail("registering client at the authorization server", err)
			return
		}
		t.ok("registering client at the authorization server", registered.Raw)

		now := NowTimeFunc()
		created := &flowstore.FlowSession{
			ID:               id,
			State:            flowstore.StateRegistered,
			RegisteredClient: registered,
			CreatedAt:        now,
		}
		if session != nil {
			created.CreatedAt = session.CreatedAt
		}
		o.save(ctx, created, t)
	})
}
