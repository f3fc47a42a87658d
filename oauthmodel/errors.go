package oauthmodel

import "errors"

var (
	ErrMissingClientID       = errors.New("registration response has no client_id")
	ErrMissingRequestURI     = errors.New("PAR response has no request_uri")
	ErrMissingRedirectURI    = errors.New("registered client has no redirect uri")
	ErrMissingAuthEndpoint   = errors.New("discovery document has no authorization endpoint")
	ErrMissingTokenEndpoint  = errors.New("discovery document has no token endpoint")
	ErrMissingPAREndpoint    = errors.New("discovery document has no pushed authorization request endpoint")
	ErrMissingRegistrationEP = errors.New("discovery document has no registration endpoint")
)
