package assertion

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

// DecodeDetached returns the data claim of a detached-JWT response body.
// The signature is not verified.
func DecodeDetached(body []byte) (json.RawMessage, error) {
	claims, err := ParseDetached(body)
	if err != nil {
		return nil, err
	}
	data, ok := claims["data"]
	if !ok {
		return nil, apperrors.New(apperrors.KindDecode, "detached jwt", fmt.Errorf("missing data claim"))
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDecode, "detached jwt", err)
	}
	return raw, nil
}

// ParseDetached returns all claims of a detached-JWT body without verifying it.
// Numbers are kept as json.Number so large amounts and ids survive unchanged.
func ParseDetached(body []byte) (jwt.MapClaims, error) {
	tokenString := string(bytes.TrimSpace(body))
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(tokenString, claims); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, "detached jwt", err)
	}
	return claims, nil
}
