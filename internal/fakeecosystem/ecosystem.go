// Package fakeecosystem runs an in-process TLS server that plays the directory,
// the authorization server and the resource server for tests.
package fakeecosystem

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ranierimazili/o2b2-fido-client/assertion"
	"github.com/ranierimazili/o2b2-fido-client/transport"
)

const (
	// ASKeyID is the kid of the authorization server signing key
	ASKeyID = "fake-as-kid"
	// ResourcePrefix is the path prefix of the resource APIs
	ResourcePrefix = "/rs"
	// ClientSubject is the subject of the fake transport certificate
	ClientSubject = "CN=fake-tpp,O=Fake TPP"
	// DirectoryToken is the access token issued by the directory
	DirectoryToken = "directory-token"
)

// Options configure the fake
type Options struct {
	// ClientSigningKey verifies client assertions, request objects and signed bodies. Nil skips verification.
	ClientSigningKey *rsa.PublicKey
	// IDTokenEncryptionKey encrypts issued ID tokens. Nil issues signed-only ID tokens.
	IDTokenEncryptionKey *rsa.PublicKey
	// RPID is the WebAuthn relying party id put in ceremony options. Defaults to "localhost".
	RPID string
	// DisableMTLSAliases publishes plain endpoints only.
	DisableMTLSAliases bool
}

// Ecosystem is a running fake.
type Ecosystem struct {
	Server *httptest.Server
	ASKey  *rsa.PrivateKey

	opts     Options
	asSigner *assertion.KeyPairSigner

	mu            sync.Mutex
	seq           int
	failures      map[string]int
	headers       map[string][]http.Header
	clients       map[string][]string
	accessTokens  map[string]string
	refreshTokens map[string]string
	pars          map[string]*parRecord
	codes         map[string]*parRecord
	enrollments   map[string]*enrollment
	consents      map[string]*consent
}

type parRecord struct {
	ClientID      string
	State         string
	RedirectURI   string
	CodeChallenge string
	Nonce         string
	Scope         string
}

type enrollment struct {
	ClientID              string
	RegistrationChallenge string
	CredentialID          string
	SignChallenge         string
}

type consent struct {
	Authorized bool
}

// New starts a fake ecosystem; it is closed when the test finishes.
func New(t testing.TB, opts Options) *Ecosystem {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate authorization server key: %v", err)
	}
	if opts.RPID == "" {
		opts.RPID = "localhost"
	}

	e := &Ecosystem{
		ASKey:         key,
		opts:          opts,
		asSigner:      assertion.NewKeyPairSigner(ASKeyID, "fake-bank", key),
		failures:      map[string]int{},
		headers:       map[string][]http.Header{},
		clients:       map[string][]string{},
		accessTokens:  map[string]string{},
		refreshTokens: map[string]string{},
		pars:          map[string]*parRecord{},
		codes:         map[string]*parRecord{},
		enrollments:   map[string]*enrollment{},
		consents:      map[string]*consent{},
	}
	e.Server = httptest.NewTLSServer(e.routes())
	t.Cleanup(e.Server.Close)
	return e
}

// URL is the base URL of the fake.
func (e *Ecosystem) URL() string {
	return e.Server.URL
}

// Identity is a transport identity trusting the fake's certificate.
func (e *Ecosystem) Identity() *transport.Identity {
	return transport.NewIdentity(e.Server.Client(), ClientSubject)
}

// DiscoveryEndpoint is the OpenID discovery URL of the authorization server.
func (e *Ecosystem) DiscoveryEndpoint() string {
	return e.Server.URL + "/.well-known/openid-configuration"
}

// DirectoryTokenURL is the directory token endpoint.
func (e *Ecosystem) DirectoryTokenURL() string {
	return e.Server.URL + "/directory/token"
}

// DirectoryHost serves the SSA endpoint.
func (e *Ecosystem) DirectoryHost() string {
	return e.Server.URL + "/directory"
}

// ResourceHost is the resource API host prefix.
func (e *Ecosystem) ResourceHost() string {
	return e.Server.URL + ResourcePrefix
}

// FailNext makes the next call of the named operation answer with status.
// Names: directory-token, ssa, register, token, par, enrollment, risk-signals,
// registration-options, fido-registration, sign-options, consent, authorise.
func (e *Ecosystem) FailNext(name string, status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[name] = status
}

// Headers returns the request headers recorded for a named resource operation.
func (e *Ecosystem) Headers(name string) []http.Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]http.Header(nil), e.headers[name]...)
}

// IssueCode approves a pushed authorization request and binds code to it.
// An empty code gets a generated value. The returned state is the one sent in the request object.
func (e *Ecosystem) IssueCode(requestURI, code string) (string, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	par, ok := e.pars[requestURI]
	if !ok {
		return "", "", fmt.Errorf("unknown request_uri %s", requestURI)
	}
	if code == "" {
		code = e.next("code")
	}
	e.codes[code] = par
	return code, par.State, nil
}

// ConsentAuthorized reports whether a consent was authorised.
func (e *Ecosystem) ConsentAuthorized(consentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.consents[consentID]
	return ok && c.Authorized
}

// CredentialID returns the credential registered for an enrollment.
func (e *Ecosystem) CredentialID(enrollmentID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if en, ok := e.enrollments[enrollmentID]; ok {
		return en.CredentialID
	}
	return ""
}

func (e *Ecosystem) next(prefix string) string {
	e.seq++
	return fmt.Sprintf("%s-%d", prefix, e.seq)
}

func (e *Ecosystem) takeFailure(name string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.failures[name]
	if ok {
		delete(e.failures, name)
	}
	return status, ok
}

func (e *Ecosystem) guard(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status, ok := e.takeFailure(name); ok {
			writeJSON(w, status, map[string]string{"error": "injected_failure", "error_description": name})
			return
		}
		next(w, r)
	}
}

func randomChallenge() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}
