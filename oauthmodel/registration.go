package oauthmodel

import "encoding/json"

// RegistrationRequest is the RFC 7591 client metadata submitted with the software statement.
type RegistrationRequest struct {
	GrantTypes                            []GrantType `json:"grant_types"`
	JWKSURI                               string      `json:"jwks_uri"`
	TokenEndpointAuthMethod               string      `json:"token_endpoint_auth_method"`
	ResponseTypes                         []string    `json:"response_types"`
	RedirectURIs                          []string    `json:"redirect_uris"`
	SoftwareStatement                     string      `json:"software_statement"`
	IDTokenSignedResponseAlg              string      `json:"id_token_signed_response_alg"`
	IDTokenEncryptedResponseAlg           string      `json:"id_token_encrypted_response_alg"`
	IDTokenEncryptedResponseEnc           string      `json:"id_token_encrypted_response_enc"`
	TLSClientCertificateBoundAccessTokens bool        `json:"tls_client_certificate_bound_access_tokens"`
}

// NewRegistrationRequest fills the fixed registration template.
func NewRegistrationRequest(ssa, jwksURI string, redirectURIs []string) *RegistrationRequest {
	return &RegistrationRequest{
		GrantTypes: []GrantType{
			AuthorizationCodeGrant,
			ImplicitGrant,
			RefreshTokenGrant,
			ClientCredentialsGrant,
		},
		JWKSURI:                               jwksURI,
		TokenEndpointAuthMethod:               TokenEndpointAuthPrivateKeyJWT,
		ResponseTypes:                         []string{string(CodeIDTokenResponseType)},
		RedirectURIs:                          redirectURIs,
		SoftwareStatement:                     ssa,
		IDTokenSignedResponseAlg:              "PS256",
		IDTokenEncryptedResponseAlg:           "RSA-OAEP",
		IDTokenEncryptedResponseEnc:           "A256GCM",
		TLSClientCertificateBoundAccessTokens: true,
	}
}

// RegisteredClient is the client metadata returned by DCR.
type RegisteredClient struct {
	ClientID                string          `json:"client_id"`
	RedirectURIs            []string        `json:"redirect_uris"`
	TokenEndpointAuthMethod string          `json:"token_endpoint_auth_method,omitempty"`
	Raw                     json.RawMessage `json:"raw,omitempty"`
}

// PrimaryRedirectURI is the redirect URI used for PAR and the code exchange.
func (c *RegisteredClient) PrimaryRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}
