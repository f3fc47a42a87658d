// Package directory talks to the ecosystem directory: it obtains a
// directory-scoped access token and the software statement assertion (SSA)
// submitted during dynamic client registration.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/transport"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config identifies the organisation and software statement in the directory
type Config struct {
	TokenURL            string
	AssertionHost       string
	ClientID            string
	OrganisationID      string
	SoftwareStatementID string
}

type Client struct {
	identity *transport.Identity
	config   Config
}

func New(identity *transport.Identity, config Config) *Client {
	return &Client{identity: identity, config: config}
}

// Token runs the client-credentials grant with scope directory:software. The
// client authenticates with its transport certificate, so the client id travels in the form body.
func (c *Client) Token(ctx context.Context) (*oauthmodel.TokenResponse, error) {
	cc := clientcredentials.Config{
		ClientID:  c.config.ClientID,
		TokenURL:  c.config.TokenURL,
		Scopes:    []string{oauthmodel.DirectoryScope},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	token, err := c.identity.TokenCall(ctx, "directory token", cc.Token)
	if err != nil {
		return nil, err
	}
	return oauthmodel.TokenResponseFrom(token, time.Now()), nil
}

// SoftwareStatementAssertion fetches the signed SSA for the configured software statement.
func (c *Client) SoftwareStatementAssertion(ctx context.Context, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/organisations/%s/softwarestatements/%s/assertion",
		strings.TrimSuffix(c.config.AssertionHost, "/"),
		url.PathEscape(c.config.OrganisationID),
		url.PathEscape(c.config.SoftwareStatementID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", apperrors.New(apperrors.KindInternal, "software statement assertion", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := c.identity.Do(req, "software statement assertion", http.StatusOK)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
