package ceremony

import "context"

// Authenticator is the platform capability that runs a credential ceremony.
// Browsers, mobile SDKs and the virtual authenticator implement it.
type Authenticator interface {
	CreateCredential(ctx context.Context, options *CreationOptions) (*AttestationCredential, error)
	GetCredential(ctx context.Context, options *RequestOptions) (*AssertionCredential, error)
}

type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID          []byte
	Name        string
	DisplayName string
}

type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	ResidentKey             string `json:"residentKey,omitempty"`
	RequireResidentKey      *bool  `json:"requireResidentKey,omitempty"`
	UserVerification        string `json:"userVerification,omitempty"`
}

// CreationOptions are the binary form of registration options.
type CreationOptions struct {
	Challenge              []byte
	RelyingParty           RelyingParty
	User                   User
	PubKeyCredParams       []CredentialParameter
	AuthenticatorSelection *AuthenticatorSelection
	Timeout                int
	Attestation            string
	ExcludeCredentials     [][]byte
}

// RequestOptions are the binary form of sign options.
type RequestOptions struct {
	Challenge        []byte
	RelyingPartyID   string
	AllowCredentials [][]byte
	Timeout          int
	UserVerification string
}

// AttestationCredential is the result of a registration ceremony.
type AttestationCredential struct {
	ID                string
	RawID             []byte
	Type              string
	ClientDataJSON    []byte
	AttestationObject []byte
}

// AssertionCredential is the result of a sign ceremony.
type AssertionCredential struct {
	ID                string
	RawID             []byte
	Type              string
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}
