package transport

import (
	"context"
	"net/http"
	"strconv"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/internal/metrics"
	"golang.org/x/oauth2"
)

// TokenCall runs a golang.org/x/oauth2 token request over the mTLS client and
// converts its failure into the error taxonomy used by the other calls.
func (i *Identity) TokenCall(ctx context.Context, op string, fetch func(ctx context.Context) (*oauth2.Token, error)) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, i.client)
	token, err := fetch(ctx)
	if err == nil {
		metrics.RecordCall(op, strconv.Itoa(http.StatusOK))
		return token, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if apperrors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		metrics.RecordCall(op, strconv.Itoa(retrieveErr.Response.StatusCode))
		return nil, apperrors.HTTPStatus(op, retrieveErr.Response.StatusCode, http.StatusOK, retrieveErr.Body)
	}
	metrics.RecordCall(op, "error")
	return nil, apperrors.New(apperrors.KindTransport, op, err)
}
