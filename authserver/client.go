// Package authserver talks to the ASPSP authorization server: discovery,
// dynamic client registration, the token endpoint grants, pushed
// authorization requests and ID token verification.
package authserver

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/ranierimazili/o2b2-fido-client/assertion"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const wellKnownPath = "/.well-known/openid-configuration"

// Config locates the authorization server and describes the software statement being registered
type Config struct {
	DiscoveryEndpoint   string
	KeystoreHost        string
	OrganisationID      string
	SoftwareStatementID string
	RedirectURIs        []string
	// IDTokenDecryptionKey enables ID token decryption and verification after the code exchange
	IDTokenDecryptionKey *rsa.PrivateKey
}

type Client struct {
	identity *transport.Identity
	signer   assertion.Signer
	config   Config

	discoveryLock sync.RWMutex
	provider      *oidc.Provider
	discovery     *oauthmodel.DiscoveryDocument
}

func New(identity *transport.Identity, signer assertion.Signer, config Config) *Client {
	return &Client{identity: identity, signer: signer, config: config}
}

// Discover fetches the OpenID provider metadata once and caches it.
func (c *Client) Discover(ctx context.Context) (*oauthmodel.DiscoveryDocument, error) {
	_, doc, err := c.discover(ctx)
	return doc, err
}

func (c *Client) discover(ctx context.Context) (*oidc.Provider, *oauthmodel.DiscoveryDocument, error) {
	c.discoveryLock.RLock()
	provider, doc := c.provider, c.discovery
	c.discoveryLock.RUnlock()
	if provider != nil {
		return provider, doc, nil
	}

	if c.config.DiscoveryEndpoint == "" {
		return nil, nil, apperrors.New(apperrors.KindMissingPrerequisite, "discovery", apperrors.ErrUnknownDiscovery)
	}
	issuer := strings.TrimSuffix(c.config.DiscoveryEndpoint, wellKnownPath)
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.identity.Client()), issuer)
	if err != nil {
		return nil, nil, apperrors.New(apperrors.KindTransport, "discovery", err)
	}
	doc = &oauthmodel.DiscoveryDocument{}
	if err := provider.Claims(doc); err != nil {
		return nil, nil, apperrors.New(apperrors.KindDecode, "discovery", err)
	}

	c.discoveryLock.Lock()
	c.provider, c.discovery = provider, doc
	c.discoveryLock.Unlock()
	log.Debug().Str("issuer", doc.Issuer).Msg("discovery document cached")
	return provider, doc, nil
}

func endpoint(op, value string, missing error) (string, error) {
	if value == "" {
		return "", apperrors.New(apperrors.KindMissingPrerequisite, op, missing)
	}
	return value, nil
}

// Register submits the software statement to the registration endpoint (RFC 7591).
func (c *Client) Register(ctx context.Context, ssa string) (*oauthmodel.RegisteredClient, error) {
	const op = "dynamic client registration"
	doc, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	registrationURL, err := endpoint(op, doc.RegistrationURL(), oauthmodel.ErrMissingRegistrationEP)
	if err != nil {
		return nil, err
	}

	jwksURI := fmt.Sprintf("%s/%s/%s/application.jwks",
		strings.TrimSuffix(c.config.KeystoreHost, "/"), c.config.OrganisationID, c.config.SoftwareStatementID)
	payload, err := json.Marshal(oauthmodel.NewRegistrationRequest(ssa, jwksURI, c.config.RedirectURIs))
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.identity.Do(req, op, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	registered := &oauthmodel.RegisteredClient{}
	if err := json.Unmarshal(body, registered); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, op, err)
	}
	if registered.ClientID == "" {
		return nil, apperrors.New(apperrors.KindDecode, op, oauthmodel.ErrMissingClientID)
	}
	registered.Raw = body
	return registered, nil
}

func (c *Client) assertionParams(clientID, audience string) (url.Values, error) {
	clientAssertion, err := c.signer.SignClientAssertion(clientID, audience)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"client_assertion":      {clientAssertion},
		"client_assertion_type": {assertion.ClientAssertionType},
	}, nil
}

// ClientCredentialsToken runs the client-credentials grant with scope payments.
func (c *Client) ClientCredentialsToken(ctx context.Context, clientID string) (*oauthmodel.TokenResponse, error) {
	const op = "client credentials token"
	doc, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	tokenURL, err := endpoint(op, doc.TokenURL(), oauthmodel.ErrMissingTokenEndpoint)
	if err != nil {
		return nil, err
	}
	params, err := c.assertionParams(clientID, tokenURL)
	if err != nil {
		return nil, err
	}

	cc := clientcredentials.Config{
		ClientID:       clientID,
		TokenURL:       tokenURL,
		Scopes:         []string{oauthmodel.PaymentsScope},
		EndpointParams: params,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	token, err := c.identity.TokenCall(ctx, op, cc.Token)
	if err != nil {
		return nil, err
	}
	return oauthmodel.TokenResponseFrom(token, time.Now()), nil
}

// ExchangeCode redeems an authorization code with the flow's PKCE verifier.
func (c *Client) ExchangeCode(ctx context.Context, registered *oauthmodel.RegisteredClient, code, verifier string) (*oauthmodel.TokenResponse, error) {
	const op = "authorization code exchange"
	doc, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	tokenURL, err := endpoint(op, doc.TokenURL(), oauthmodel.ErrMissingTokenEndpoint)
	if err != nil {
		return nil, err
	}
	clientAssertion, err := c.signer.SignClientAssertion(registered.ClientID, tokenURL)
	if err != nil {
		return nil, err
	}

	oauthConfig := oauth2.Config{
		ClientID:    registered.ClientID,
		Endpoint:    oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		RedirectURL: registered.PrimaryRedirectURI(),
	}
	token, err := c.identity.TokenCall(ctx, op, func(ctx context.Context) (*oauth2.Token, error) {
		return oauthConfig.Exchange(ctx, code,
			oauth2.SetAuthURLParam("client_assertion", clientAssertion),
			oauth2.SetAuthURLParam("client_assertion_type", assertion.ClientAssertionType),
			oauth2.VerifierOption(verifier),
		)
	})
	if err != nil {
		return nil, err
	}
	return oauthmodel.TokenResponseFrom(token, time.Now()), nil
}

// Refresh runs the refresh_token grant authenticated with a client assertion.
func (c *Client) Refresh(ctx context.Context, clientID, refreshToken string) (*oauthmodel.TokenResponse, error) {
	const op = "refresh token"
	if refreshToken == "" {
		return nil, apperrors.New(apperrors.KindMissingPrerequisite, op, apperrors.ErrMissingRefresh)
	}
	doc, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	tokenURL, err := endpoint(op, doc.TokenURL(), oauthmodel.ErrMissingTokenEndpoint)
	if err != nil {
		return nil, err
	}
	params, err := c.assertionParams(clientID, tokenURL)
	if err != nil {
		return nil, err
	}
	params.Set("grant_type", string(oauthmodel.RefreshTokenGrant))
	params.Set("refresh_token", refreshToken)

	// clientcredentials lets EndpointParams replace grant_type
	cc := clientcredentials.Config{
		ClientID:       clientID,
		TokenURL:       tokenURL,
		EndpointParams: params,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	token, err := c.identity.TokenCall(ctx, op, cc.Token)
	if err != nil {
		return nil, err
	}
	return oauthmodel.TokenResponseFrom(token, time.Now()), nil
}
