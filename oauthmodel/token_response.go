package oauthmodel

import (
	"time"

	"github.com/ranierimazili/o2b2-fido-client/internal/utils"
	"golang.org/x/oauth2"
)

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the certificate-bound token used to call the resource APIs.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token. In this ecosystem it is encrypted
	// (RSA-OAEP / A256GCM) to the client's encryption key.
	// Only present: code exchange with the "openid" scope
	IdToken *string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token.
	// Example: "Bearer"
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Note: computed from the absolute expiry the oauth2 library keeps
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is used by the refresh_token grant in the later flow steps.
	// Security: rotates on each use when the authorization server supports rotation
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions.
	// Example: "openid payments consent:urn:bank:enrollment:123"
	Scope string `json:"scope,omitempty"`
}

// TokenResponseFrom converts a token obtained through golang.org/x/oauth2.
func TokenResponseFrom(token *oauth2.Token, now time.Time) *TokenResponse {
	resp := &TokenResponse{
		TokenType: token.TokenType,
	}
	if token.AccessToken != "" {
		resp.AccessToken = utils.Ptr(token.AccessToken)
	}
	if token.RefreshToken != "" {
		resp.RefreshToken = utils.Ptr(token.RefreshToken)
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		resp.IdToken = utils.Ptr(idToken)
	}
	if scope, ok := token.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if !token.Expiry.IsZero() {
		resp.ExpiresIn = int(token.Expiry.Sub(now).Round(time.Second).Seconds())
	}
	return resp
}

// GetAccessToken returns the access token or an empty string
func (t *TokenResponse) GetAccessToken() string {
	if t == nil {
		return ""
	}
	return utils.Value(t.AccessToken)
}

// GetRefreshToken returns the refresh token or an empty string
func (t *TokenResponse) GetRefreshToken() string {
	if t == nil {
		return ""
	}
	return utils.Value(t.RefreshToken)
}

// GetIDToken returns the ID token or an empty string
func (t *TokenResponse) GetIDToken() string {
	if t == nil {
		return ""
	}
	return utils.Value(t.IdToken)
}
