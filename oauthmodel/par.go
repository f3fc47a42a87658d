package oauthmodel

// PARResponse is the pushed authorization request response (RFC 9126).
type PARResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// CallbackPayload is what the authorization server redirect delivers for a flow.
// State carries the flow id.
type CallbackPayload struct {
	State   string `json:"state"`
	Code    string `json:"code"`
	IDToken string `json:"id_token,omitempty"`
}
