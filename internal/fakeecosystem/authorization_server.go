package fakeecosystem

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ranierimazili/o2b2-fido-client/assertion"
)

func (e *Ecosystem) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /directory/token", e.guard("directory-token", e.directoryToken))
	mux.HandleFunc("GET /directory/organisations/{org}/softwarestatements/{ss}/assertion", e.guard("ssa", e.softwareStatement))

	mux.HandleFunc("GET /.well-known/openid-configuration", e.discovery)
	mux.HandleFunc("GET /jwks", e.jwks)
	mux.HandleFunc("GET /authorize", e.authorize)
	mux.HandleFunc("POST /register", e.plainEndpoint(e.guard("register", e.register)))
	mux.HandleFunc("POST /token", e.plainEndpoint(e.guard("token", e.token)))
	mux.HandleFunc("POST /par", e.plainEndpoint(e.guard("par", e.par)))
	mux.HandleFunc("POST /mtls/register", e.guard("register", e.register))
	mux.HandleFunc("POST /mtls/token", e.guard("token", e.token))
	mux.HandleFunc("POST /mtls/par", e.guard("par", e.par))

	e.resourceRoutes(mux)
	return mux
}

// plainEndpoint rejects calls to non-alias endpoints while mTLS aliases are published.
func (e *Ecosystem) plainEndpoint(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !e.opts.DisableMTLSAliases {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "use the mtls endpoint alias")
			return
		}
		next(w, r)
	}
}

func (e *Ecosystem) directoryToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("scope") != "directory:software" || r.PostForm.Get("client_id") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unexpected directory token request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": DirectoryToken, "token_type": "Bearer", "expires_in": 300})
}

func (e *Ecosystem) softwareStatement(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+DirectoryToken {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "directory token required")
		return
	}
	ssa, err := e.asSigner.SignPayload(map[string]any{
		"org_id":      r.PathValue("org"),
		"software_id": r.PathValue("ss"),
	}, "directory")
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/jwt")
	_, _ = w.Write([]byte(ssa))
}

func (e *Ecosystem) discovery(w http.ResponseWriter, _ *http.Request) {
	base := e.Server.URL
	doc := map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"pushed_authorization_request_endpoint": base + "/par",
		"registration_endpoint":                 base + "/register",
		"jwks_uri":                              base + "/jwks",
		"id_token_signing_alg_values_supported": []string{"PS256"},
		"response_types_supported":              []string{"code id_token"},
	}
	if !e.opts.DisableMTLSAliases {
		doc["mtls_endpoint_aliases"] = map[string]string{
			"token_endpoint":                        base + "/mtls/token",
			"pushed_authorization_request_endpoint": base + "/mtls/par",
			"registration_endpoint":                 base + "/mtls/register",
		}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (e *Ecosystem) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &e.ASKey.PublicKey,
		KeyID:     ASKeyID,
		Algorithm: "PS256",
		Use:       "sig",
	}}})
}

func (e *Ecosystem) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SoftwareStatement string   `json:"software_statement"`
		RedirectURIs      []string `json:"redirect_uris"`
		AuthMethod        string   `json:"token_endpoint_auth_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
		return
	}
	if req.SoftwareStatement == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_software_statement", "software_statement is required")
		return
	}
	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
		return
	}

	e.mu.Lock()
	clientID := e.next("client")
	e.clients[clientID] = req.RedirectURIs
	e.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"client_id":                  clientID,
		"redirect_uris":              req.RedirectURIs,
		"token_endpoint_auth_method": req.AuthMethod,
		"software_statement":         req.SoftwareStatement,
	})
}

func (e *Ecosystem) verifyJWT(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if e.opts.ClientSigningKey == nil {
		_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
		return claims, err
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return e.opts.ClientSigningKey, nil
	}, jwt.WithValidMethods([]string{"PS256"}))
	return claims, err
}

func (e *Ecosystem) authenticateClient(r *http.Request) (string, error) {
	if r.PostForm.Get("client_assertion_type") != assertion.ClientAssertionType {
		return "", fmt.Errorf("client_assertion_type must be jwt-bearer")
	}
	claims, err := e.verifyJWT(r.PostForm.Get("client_assertion"))
	if err != nil {
		return "", fmt.Errorf("invalid client assertion: %w", err)
	}
	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	if iss == "" || iss != sub {
		return "", fmt.Errorf("client assertion iss and sub must be the client id")
	}
	e.mu.Lock()
	_, known := e.clients[iss]
	e.mu.Unlock()
	if !known {
		return "", fmt.Errorf("unknown client %s", iss)
	}
	return iss, nil
}

func (e *Ecosystem) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	clientID, err := e.authenticateClient(r)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		if r.PostForm.Get("scope") != "payments" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_scope", "payments scope required")
			return
		}
		e.issueTokens(w, clientID, "payments", false, "")
	case "authorization_code":
		e.mu.Lock()
		par, ok := e.codes[r.PostForm.Get("code")]
		delete(e.codes, r.PostForm.Get("code"))
		e.mu.Unlock()
		switch {
		case !ok || par.ClientID != clientID:
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown code")
		case r.PostForm.Get("redirect_uri") != par.RedirectURI:
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		case s256(r.PostForm.Get("code_verifier")) != par.CodeChallenge:
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match code_challenge")
		default:
			e.issueTokens(w, clientID, par.Scope, true, par.Nonce)
		}
	case "refresh_token":
		e.mu.Lock()
		owner, ok := e.refreshTokens[r.PostForm.Get("refresh_token")]
		delete(e.refreshTokens, r.PostForm.Get("refresh_token"))
		e.mu.Unlock()
		if !ok || owner != clientID {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
			return
		}
		e.issueTokens(w, clientID, "openid payments", true, "")
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", r.PostForm.Get("grant_type"))
	}
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (e *Ecosystem) issueTokens(w http.ResponseWriter, clientID, scope string, withRefresh bool, nonce string) {
	e.mu.Lock()
	accessToken := e.next("access")
	e.accessTokens[accessToken] = clientID
	resp := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   300,
		"scope":        scope,
	}
	if withRefresh {
		refreshToken := e.next("refresh")
		e.refreshTokens[refreshToken] = clientID
		resp["refresh_token"] = refreshToken
	}
	e.mu.Unlock()

	if nonce != "" {
		idToken, err := e.idToken(clientID, nonce)
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		resp["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *Ecosystem) idToken(clientID, nonce string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodPS256, jwt.MapClaims{
		"iss":   e.Server.URL,
		"sub":   "fake-user",
		"aud":   clientID,
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
		"nonce": nonce,
	})
	token.Header["kid"] = ASKeyID
	signed, err := token.SignedString(e.ASKey)
	if err != nil || e.opts.IDTokenEncryptionKey == nil {
		return signed, err
	}

	encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{
		Algorithm: jose.RSA_OAEP,
		Key:       e.opts.IDTokenEncryptionKey,
	}, (&jose.EncrypterOptions{}).WithContentType("JWT"))
	if err != nil {
		return "", err
	}
	encrypted, err := encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", err
	}
	return encrypted.CompactSerialize()
}

func (e *Ecosystem) par(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	clientID, err := e.authenticateClient(r)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}
	claims, err := e.verifyJWT(r.PostForm.Get("request"))
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request_object", err.Error())
		return
	}

	str := func(k string) string {
		v, _ := claims[k].(string)
		return v
	}
	switch {
	case str("client_id") != clientID || str("iss") != clientID:
		writeOAuthError(w, http.StatusBadRequest, "invalid_request_object", "client_id mismatch")
		return
	case str("aud") != e.Server.URL:
		writeOAuthError(w, http.StatusBadRequest, "invalid_request_object", "aud must be the issuer")
		return
	case str("response_type") != "code id_token" || str("code_challenge_method") != "S256":
		writeOAuthError(w, http.StatusBadRequest, "invalid_request_object", "unsupported response_type or challenge method")
		return
	case str("state") == "" || str("nonce") == "" || str("code_challenge") == "":
		writeOAuthError(w, http.StatusBadRequest, "invalid_request_object", "state, nonce and code_challenge are required")
		return
	case !strings.HasPrefix(str("scope"), "openid payments consent:"):
		writeOAuthError(w, http.StatusBadRequest, "invalid_scope", str("scope"))
		return
	}

	e.mu.Lock()
	requestURI := "urn:ietf:params:oauth:request_uri:" + e.next("par")
	e.pars[requestURI] = &parRecord{
		ClientID:      clientID,
		State:         str("state"),
		RedirectURI:   str("redirect_uri"),
		CodeChallenge: str("code_challenge"),
		Nonce:         str("nonce"),
		Scope:         str("scope"),
	}
	e.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"request_uri": requestURI, "expires_in": 90})
}

// authorize approves immediately and redirects with code and state in the query.
func (e *Ecosystem) authorize(w http.ResponseWriter, r *http.Request) {
	requestURI := r.URL.Query().Get("request_uri")
	code, state, err := e.IssueCode(requestURI, "")
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request_uri", err.Error())
		return
	}
	e.mu.Lock()
	redirectURI := e.pars[requestURI].RedirectURI
	e.mu.Unlock()

	target, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	q := target.Query()
	q.Set("code", code)
	q.Set("state", state)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
