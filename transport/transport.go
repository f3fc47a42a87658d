// Package transport builds the mutual-TLS HTTP client shared by every protocol
// client and executes single request/response exchanges against it.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/internal/metrics"
	"github.com/rs/zerolog/log"
)

// MaxBodySize caps every response body read from an ecosystem participant
const MaxBodySize = 1 << 20

// Options tune the TLS client
type Options struct {
	// CAFile is an optional PEM bundle added to the system roots
	CAFile string
	// InsecureSkipVerify disables server certificate verification (sandbox use only)
	InsecureSkipVerify bool
	// Timeout bounds each request, defaults to 30s
	Timeout time.Duration
}

// Identity is the organisation's transport credential: an mTLS client plus the
// subject of the certificate it presents.
type Identity struct {
	client  *http.Client
	subject string
}

// NewIdentity wraps an already configured client.
func NewIdentity(client *http.Client, subject string) *Identity {
	return &Identity{client: client, subject: subject}
}

// LoadIdentity loads the transport key pair once and builds the mTLS client from it.
func LoadIdentity(certFile, keyFile string, opts Options) (*Identity, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load transport key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse transport certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402 -- opt-in for sandbox environments
	}
	if opts.CAFile != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		caPEM, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	if opts.InsecureSkipVerify {
		log.Warn().Msg("TLS server certificate verification is disabled")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &Identity{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		subject: leaf.Subject.String(),
	}, nil
}

// Client returns the mTLS client.
func (i *Identity) Client() *http.Client {
	return i.client
}

// Subject returns the transport certificate subject, used as the FIDO relying party.
func (i *Identity) Subject() string {
	return i.subject
}

// Do sends req and returns the response body when the response status equals expected.
// Network failures are reported as KindTransport, other statuses as KindHTTPStatus.
func (i *Identity) Do(req *http.Request, op string, expected int) ([]byte, error) {
	resp, err := i.client.Do(req)
	if err != nil {
		metrics.RecordCall(op, "error")
		return nil, apperrors.New(apperrors.KindTransport, op, err)
	}
	defer resp.Body.Close()
	metrics.RecordCall(op, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransport, op, fmt.Errorf("failed to read response body: %w", err))
	}

	log.Debug().Str("op", op).Str("url", req.URL.String()).Int("status", resp.StatusCode).Msg("outbound call")
	if resp.StatusCode != expected {
		return nil, apperrors.HTTPStatus(op, resp.StatusCode, expected, body)
	}
	return body, nil
}
