package oauthmodel

import "github.com/ranierimazili/o2b2-fido-client/internal/utils"

// DiscoveryDocument is the subset of the OpenID provider metadata the flows use.
type DiscoveryDocument struct {
	Issuer                             string               `json:"issuer"`
	AuthorizationEndpoint              string               `json:"authorization_endpoint"`
	TokenEndpoint                      string               `json:"token_endpoint"`
	PushedAuthorizationRequestEndpoint string               `json:"pushed_authorization_request_endpoint"`
	RegistrationEndpoint               string               `json:"registration_endpoint"`
	JWKSURI                            string               `json:"jwks_uri"`
	MTLSEndpointAliases                *MTLSEndpointAliases `json:"mtls_endpoint_aliases,omitempty"`
}

// MTLSEndpointAliases (RFC 8705) lists the endpoints to use when authenticating with a client certificate.
type MTLSEndpointAliases struct {
	TokenEndpoint                      string `json:"token_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string `json:"pushed_authorization_request_endpoint,omitempty"`
	RegistrationEndpoint               string `json:"registration_endpoint,omitempty"`
}

func (d *DiscoveryDocument) aliases() MTLSEndpointAliases {
	if d.MTLSEndpointAliases == nil {
		return MTLSEndpointAliases{}
	}
	return *d.MTLSEndpointAliases
}

// TokenURL prefers the mTLS alias.
func (d *DiscoveryDocument) TokenURL() string {
	return utils.FirstNonEmpty(d.aliases().TokenEndpoint, d.TokenEndpoint)
}

// PARURL prefers the mTLS alias.
func (d *DiscoveryDocument) PARURL() string {
	return utils.FirstNonEmpty(d.aliases().PushedAuthorizationRequestEndpoint, d.PushedAuthorizationRequestEndpoint)
}

// RegistrationURL prefers the mTLS alias.
func (d *DiscoveryDocument) RegistrationURL() string {
	return utils.FirstNonEmpty(d.aliases().RegistrationEndpoint, d.RegistrationEndpoint)
}
