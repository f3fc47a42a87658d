package directory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ranierimazili/o2b2-fido-client/directory"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/transport"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "directory-client"
	testOrgID    = "org-1"
	testSSID     = "ss-1"
)

func newDirectory(t *testing.T, handler http.HandlerFunc) *directory.Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return directory.New(transport.NewIdentity(srv.Client(), "CN=test"), directory.Config{
		TokenURL:            srv.URL + "/token",
		AssertionHost:       srv.URL,
		ClientID:            testClientID,
		OrganisationID:      testOrgID,
		SoftwareStatementID: testSSID,
	})
}

func TestToken(t *testing.T) {
	client := newDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "directory:software", r.PostForm.Get("scope"))
		require.Equal(t, testClientID, r.PostForm.Get("client_id"))
		require.Empty(t, r.PostForm.Get("client_assertion"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"dir-at","token_type":"Bearer","expires_in":300}`))
	})

	token, err := client.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "dir-at", token.GetAccessToken())
}

func TestTokenFailure(t *testing.T) {
	client := newDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	})

	_, err := client.Token(context.Background())
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.KindHTTPStatus, appErr.Kind)
	require.Equal(t, http.StatusUnauthorized, appErr.Status)
	require.Contains(t, appErr.Body, "invalid_client")
}

func TestSoftwareStatementAssertion(t *testing.T) {
	client := newDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/organisations/org-1/softwarestatements/ss-1/assertion", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer dir-at" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/jwt")
		_, _ = w.Write([]byte("eyJhbGciOiJQUzI1NiJ9.e30.sig\n"))
	})

	ssa, err := client.SoftwareStatementAssertion(context.Background(), "dir-at")
	require.NoError(t, err)
	require.Equal(t, "eyJhbGciOiJQUzI1NiJ9.e30.sig", ssa)

	_, err = client.SoftwareStatementAssertion(context.Background(), "wrong")
	require.Equal(t, apperrors.KindHTTPStatus, apperrors.KindOf(err))
}
