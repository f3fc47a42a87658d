package oauthmodel

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges the code delivered to the redirect URI.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ImplicitGrant is registered for the hybrid "code id_token" response type.
	ImplicitGrant GrantType = "implicit"

	// RefreshTokenGrant re-issues tokens for a flow that already holds a refresh token.
	RefreshTokenGrant GrantType = "refresh_token"

	// ClientCredentialsGrant issues tokens to the client itself.
	// Used for: directory access, enrollment and payment-consent creation.
	ClientCredentialsGrant GrantType = "client_credentials"
)

// ResponseType represents the OAuth 2.0 response type requested in the request object.
type ResponseType string

const (
	// CodeIDTokenResponseType is the FAPI hybrid flow: the authorization response
	// carries both a code and an ID token.
	CodeIDTokenResponseType ResponseType = "code id_token"
)

// CodeMethodType represents the PKCE challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// Scopes requested from the directory and the authorization server
const (
	DirectoryScope = "directory:software"
	PaymentsScope  = "payments"
)

// TokenEndpointAuthPrivateKeyJWT is the only client authentication method registered
const TokenEndpointAuthPrivateKeyJWT = "private_key_jwt"

// Platform identifies the user agent running the WebAuthn ceremony.
type Platform string

const (
	PlatformAndroid Platform = "ANDROID"
	PlatformIOS     Platform = "IOS"
	PlatformBrowser Platform = "BROWSER"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformBrowser:
		return true
	}
	return false
}
