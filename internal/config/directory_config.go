package config

import "fmt"

const sandboxDirectory = "sandbox"

type Directory struct{}

var _ DirectoryConfig = Directory{}

// GetDirectoryEnv returns "sandbox" or "production".
func (Directory) GetDirectoryEnv() string {
	if GetEnv("DIRECTORY_ENV", sandboxDirectory) == sandboxDirectory {
		return sandboxDirectory
	}
	return "production"
}

func (d Directory) hostSuffix() string {
	if d.GetDirectoryEnv() == sandboxDirectory {
		return ".sandbox"
	}
	return ""
}

func (d Directory) GetDirectoryTokenURL() string {
	return GetEnv("DIRECTORY_TOKEN_URL", d.GetDirectoryAssertionHost()+"/token")
}

func (d Directory) GetDirectoryAssertionHost() string {
	return GetEnv("DIRECTORY_ASSERTION_HOST", fmt.Sprintf("https://matls-auth%s.directory.openbankingbrasil.org.br", d.hostSuffix()))
}

func (d Directory) GetDirectoryKeystoreHost() string {
	return GetEnv("DIRECTORY_KEYSTORE_HOST", fmt.Sprintf("https://keystore%s.directory.openbankingbrasil.org.br", d.hostSuffix()))
}

func (Directory) GetDirectoryClientID() string {
	return GetEnv("DIRECTORY_CLIENT_ID", "")
}

func (Directory) GetOrganisationID() string {
	return GetEnv("DIRECTORY_ORGANISATION_ID", "")
}

func (Directory) GetSoftwareStatementID() string {
	return GetEnv("DIRECTORY_SOFTWARE_STATEMENT_ID", "")
}

func (Directory) GetRedirectURIs() []string {
	return GetList("DIRECTORY_SOFTWARE_STATEMENT_REDIRECT_URIS")
}

func (Directory) GetSigningKeyID() string {
	return GetEnv("DIRECTORY_SIGNING_CERT_KID", "")
}
