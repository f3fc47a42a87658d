package authserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
)

// PARRequest carries the flow specific parameters of a pushed authorization request
type PARRequest struct {
	// State is the flow id; the authorization server echoes it on the callback
	State         string
	EnrollmentID  string
	CodeChallenge string
	Nonce         string
}

// PushAuthorizationRequest signs the request object and pushes it (RFC 9126).
func (c *Client) PushAuthorizationRequest(ctx context.Context, registered *oauthmodel.RegisteredClient, par PARRequest) (*oauthmodel.PARResponse, error) {
	const op = "pushed authorization request"
	doc, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	parURL, err := endpoint(op, doc.PARURL(), oauthmodel.ErrMissingPAREndpoint)
	if err != nil {
		return nil, err
	}
	redirectURI, err := endpoint(op, registered.PrimaryRedirectURI(), oauthmodel.ErrMissingRedirectURI)
	if err != nil {
		return nil, err
	}

	requestObject, err := c.signer.SignRequestObject(registered.ClientID, doc.Issuer, map[string]any{
		"response_type":         string(oauthmodel.CodeIDTokenResponseType),
		"code_challenge_method": string(oauthmodel.CodeMethodTypeS256),
		"code_challenge":        par.CodeChallenge,
		"nonce":                 par.Nonce,
		"client_id":             registered.ClientID,
		"scope":                 "openid payments consent:" + par.EnrollmentID,
		"redirect_uri":          redirectURI,
		"state":                 par.State,
	})
	if err != nil {
		return nil, err
	}
	form, err := c.assertionParams(registered.ClientID, parURL)
	if err != nil {
		return nil, err
	}
	form.Set("request", requestObject)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.identity.Do(req, op, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	resp := &oauthmodel.PARResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}
	if resp.RequestURI == "" {
		return nil, apperrors.New(apperrors.KindDecode, op, oauthmodel.ErrMissingRequestURI)
	}
	return resp, nil
}

// AuthorizationURL is the URL the user agent is sent to for a pushed request.
func (c *Client) AuthorizationURL(ctx context.Context, clientID, requestURI string) (string, error) {
	doc, err := c.Discover(ctx)
	if err != nil {
		return "", err
	}
	authorizationEndpoint, err := endpoint("authorization url", doc.AuthorizationEndpoint, oauthmodel.ErrMissingAuthEndpoint)
	if err != nil {
		return "", err
	}
	query := url.Values{
		"client_id":   {clientID},
		"request_uri": {requestURI},
	}
	return authorizationEndpoint + "?" + query.Encode(), nil
}
