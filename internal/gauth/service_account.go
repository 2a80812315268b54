package gauth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"solarbill/internal/config"
	"solarbill/internal/domain"
)

// ServiceAccount is the subset of a service-account key needed for the
// signed-assertion exchange.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccount decodes a service-account JSON key.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("%w: decoding service account: %v", domain.ErrMissingCredentials, err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("%w: service account missing client_email or private_key", domain.ErrMissingCredentials)
	}
	return &sa, nil
}

// LoadServiceAccount resolves the credential from inline JSON, a key file, or
// the discrete email/key settings, in that order.
func LoadServiceAccount(cfg *config.GoogleConfig) (*ServiceAccount, error) {
	switch {
	case cfg.CredentialsJSON != "":
		return ParseServiceAccount([]byte(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrMissingCredentials, cfg.CredentialsFile, err)
		}
		return ParseServiceAccount(raw)
	case cfg.ClientEmail != "" && cfg.PrivateKey != "":
		return &ServiceAccount{
			Type:        "service_account",
			ClientEmail: cfg.ClientEmail,
			// env vars usually carry the PEM with escaped newlines
			PrivateKey: strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n"),
		}, nil
	default:
		return nil, domain.ErrMissingCredentials
	}
}
