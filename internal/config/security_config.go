package config

import "path/filepath"

type SecurityConfig interface {
	GetSigningKeyPath() string
	GetSigningKeyPassphrase() string
	GetTransportCertPath() string
	GetTransportKeyPath() string
	GetIDTokenDecryptionKeyPath() string
	GetCAFile() string
	GetTLSInsecureSkipVerify() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

func certsFolder() string {
	return GetEnv("CERTS_FOLDER", "./certs")
}

func (Security) GetSigningKeyPath() string {
	return filepath.Join(certsFolder(), "signing.key")
}

func (Security) GetSigningKeyPassphrase() string {
	return GetEnv("SIGNING_KEY_PASSPHRASE", "")
}

func (Security) GetTransportCertPath() string {
	return filepath.Join(certsFolder(), "transport.pem")
}

func (Security) GetTransportKeyPath() string {
	return filepath.Join(certsFolder(), "transport.key")
}

// GetIDTokenDecryptionKeyPath is empty when ID tokens are not decrypted and verified.
func (Security) GetIDTokenDecryptionKeyPath() string {
	return GetEnv("ID_TOKEN_DECRYPTION_KEY", "")
}

func (Security) GetCAFile() string {
	return GetEnv("TLS_CA_FILE", "")
}

func (Security) GetTLSInsecureSkipVerify() bool {
	return GetBool("TLS_INSECURE_SKIP_VERIFY", false)
}
