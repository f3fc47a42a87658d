package ceremony

import (
	"encoding/base64"
	"strings"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

var toURLAlphabet = strings.NewReplacer("+", "-", "/", "_")
var fromURLAlphabet = strings.NewReplacer("-", "+", "_", "/")

// Encode converts bytes to base64url without padding.
func Encode(b []byte) string {
	return strings.TrimRight(toURLAlphabet.Replace(base64.StdEncoding.EncodeToString(b)), "=")
}

// Decode reverses Encode. Padded input is accepted.
func Decode(s string) ([]byte, error) {
	s = fromURLAlphabet.Replace(strings.TrimRight(s, "="))
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDecode, "base64url", err)
	}
	return b, nil
}
