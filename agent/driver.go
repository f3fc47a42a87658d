// Package agent drives a flow through the orchestrator's HTTP surface the way
// the browser front end does, with a platform authenticator standing in for
// the user's device.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/browser"
	"github.com/ranierimazili/o2b2-fido-client/ceremony"
	"github.com/ranierimazili/o2b2-fido-client/flow"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/server"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
	DefaultMaxElapsed   = 5 * time.Minute

	maxResponseBytes = 4 << 20
)

// Opener presents the authorization URL to the user.
type Opener func(url string) error

// OpenBrowser opens url in the system browser.
func OpenBrowser(url string) error {
	return browser.OpenURL(url)
}

// PrintRedirect only logs url; the user opens it by hand.
func PrintRedirect(url string) error {
	log.Info().Str("url", url).Msg("open this URL to authorise the device binding")
	return nil
}

// Options configure a Driver. Zero values take the defaults above. PollInterval
// is capped at half of MaxElapsed so that a second poll always fits.
type Options struct {
	BaseURL      string
	Platform     oauthmodel.Platform
	PollInterval time.Duration
	MaxAttempts  uint
	MaxElapsed   time.Duration
	HTTPClient   *http.Client
	Opener       Opener
	// Report receives the trail of every step call, including pending polls.
	Report func(step flow.Step, results []oauthmodel.StepResult)
}

// StepError reports a step whose trail carries a failed entry.
type StepError struct {
	Step    flow.Step
	Results []oauthmodel.StepResult
}

func (e *StepError) Error() string {
	for _, r := range e.Results {
		if r.Success {
			continue
		}
		reason := gjson.Get(r.Details, "error").String()
		if reason == "" {
			reason = gjson.Get(r.Details, "kind").String()
		}
		if reason == "" {
			return fmt.Sprintf("%s: %s failed", e.Step, r.Message)
		}
		return fmt.Sprintf("%s: %s failed: %s", e.Step, r.Message, reason)
	}
	return fmt.Sprintf("%s: no results", e.Step)
}

// Kind is the error kind reported by the failed entry, if any.
func (e *StepError) Kind() apperrors.Kind {
	for _, r := range e.Results {
		if !r.Success {
			return apperrors.Kind(gjson.Get(r.Details, "kind").String())
		}
	}
	return ""
}

type Driver struct {
	baseURL     string
	client      *http.Client
	coordinator *ceremony.Coordinator
	opts        Options
}

func New(coordinator *ceremony.Coordinator, opts Options) *Driver {
	if opts.Platform == "" {
		opts.Platform = oauthmodel.PlatformBrowser
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = DefaultMaxElapsed
	}
	// a wait that cannot fit in MaxElapsed would end the poll after one attempt
	if opts.PollInterval > opts.MaxElapsed/2 {
		opts.PollInterval = opts.MaxElapsed / 2
	}
	if opts.Opener == nil {
		opts.Opener = PrintRedirect
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Driver{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		client:      client,
		coordinator: coordinator,
		opts:        opts,
	}
}

// Run binds a device to flow id and then authorises one payment consent with it.
// It returns the authorised consent id.
func (d *Driver) Run(ctx context.Context, id string) (string, error) {
	if err := d.Bind(ctx, id); err != nil {
		return "", err
	}
	return d.Pay(ctx, id)
}

// Bind registers the client, starts the authorization, waits for the callback
// and registers a credential made by the authenticator.
func (d *Driver) Bind(ctx context.Context, id string) error {
	if _, err := d.step(ctx, flow.StepRegister, server.RouteDCR, id, nil); err != nil {
		return err
	}

	results, err := d.step(ctx, flow.StepBind1, server.RouteBindStep1, id, nil)
	if err != nil {
		return err
	}
	redirect := oauthmodel.LastRedirect(results)
	if redirect == "" {
		return &StepError{Step: flow.StepBind1, Results: append(results, oauthmodel.StepResult{Message: "reading authorization URL"})}
	}
	if err := d.opts.Opener(redirect); err != nil {
		return apperrors.Wrapf(err, "opening authorization URL")
	}

	results, err = d.AwaitCallback(ctx, id)
	if err != nil {
		return err
	}
	credential, err := d.coordinator.Register(ctx, lastDetails(results))
	if err != nil {
		return err
	}

	_, err = d.step(ctx, flow.StepBind3, server.RouteBindStep3, id, credential)
	return err
}

// Pay creates a payment consent and authorises it with an assertion from the
// bound credential. It returns the consent id.
func (d *Driver) Pay(ctx context.Context, id string) (string, error) {
	results, err := d.step(ctx, flow.StepPayment1, server.RoutePaymentStep1, id, map[string]oauthmodel.Platform{"platform": d.opts.Platform})
	if err != nil {
		return "", err
	}
	assertion, err := d.coordinator.Sign(ctx, lastDetails(results))
	if err != nil {
		return "", err
	}

	results, err = d.step(ctx, flow.StepPayment2, server.RoutePaymentStep2, id, map[string]json.RawMessage{"fidoAssertion": assertion})
	if err != nil {
		return "", err
	}
	return gjson.Get(results[len(results)-1].Details, "consentId").String(), nil
}

// AwaitCallback polls step 2 until the authorization code has arrived. Polling
// stops after the configured attempts or elapsed time with ErrCallbackTimeout;
// any other failure stops it at once.
func (d *Driver) AwaitCallback(ctx context.Context, id string) ([]oauthmodel.StepResult, error) {
	attempts := 0
	body := map[string]oauthmodel.Platform{"platform": d.opts.Platform}

	poll := func() ([]oauthmodel.StepResult, error) {
		attempts++
		results, err := d.call(ctx, flow.StepBind2, server.RouteBindStep2, id, body)
		if err != nil {
			return nil, err
		}
		if callbackPending(results) {
			return nil, apperrors.ErrCallbackPending
		}
		if !oauthmodel.Succeeded(results) {
			return nil, backoff.Permanent(&StepError{Step: flow.StepBind2, Results: results})
		}
		return results, nil
	}

	results, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(d.opts.PollInterval)),
		backoff.WithMaxTries(d.opts.MaxAttempts),
		backoff.WithMaxElapsedTime(d.opts.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Str("flow", id).Int("attempt", attempts).Dur("retry_in", next).Msg("waiting for authorization code")
		}),
	)
	switch {
	case err == nil:
		return results, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, apperrors.ErrCallbackPending):
		return nil, fmt.Errorf("%w: flow %s gave up after %d attempts", apperrors.ErrCallbackTimeout, id, attempts)
	default:
		return nil, err
	}
}

func callbackPending(results []oauthmodel.StepResult) bool {
	return len(results) == 1 && !results[0].Success && results[0].Message == flow.MsgCallbackPending
}

func lastDetails(results []oauthmodel.StepResult) json.RawMessage {
	return json.RawMessage(results[len(results)-1].Details)
}

// step calls one endpoint and turns a failed trail into a StepError.
func (d *Driver) step(ctx context.Context, step flow.Step, route, id string, body any) ([]oauthmodel.StepResult, error) {
	results, err := d.call(ctx, step, route, id, body)
	if err != nil {
		return nil, err
	}
	if !oauthmodel.Succeeded(results) {
		return results, &StepError{Step: step, Results: results}
	}
	return results, nil
}

func (d *Driver) call(ctx context.Context, step flow.Step, route, id string, body any) ([]oauthmodel.StepResult, error) {
	op := string(step)
	var payload []byte
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		payload = b
	default:
		var err error
		if payload, err = json.Marshal(b); err != nil {
			return nil, apperrors.New(apperrors.KindInvalidRequest, op, err)
		}
	}

	target := d.baseURL + strings.Replace(route, "{id}", url.PathEscape(id), 1)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.HTTPStatus(op, resp.StatusCode, http.StatusOK, raw)
	}

	var results []oauthmodel.StepResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}
	if d.opts.Report != nil {
		d.opts.Report(step, results)
	}
	if len(results) == 0 {
		return nil, apperrors.New(apperrors.KindDecode, op, errors.New("empty result list"))
	}
	return results, nil
}
