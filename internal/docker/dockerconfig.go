package docker

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFileName is the file name the scanning tool expects for registry auth.
const ConfigFileName = "config.json"

var errInvalidCredential = errors.New("invalid registry credential, want registry:username:password")

// RegistryCredentials stores credentials for a Docker registry.
type RegistryCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authEntry struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Auth     string `json:"auth"`
}

type configFile struct {
	Auths map[string]authEntry `json:"auths"`
}

// ParseCredentials parses registry:username:password entries keyed by registry.
// The password may itself contain colons.
func ParseCredentials(creds []string) (map[string]RegistryCredentials, error) {
	const (
		registryURLIndex = 0
		usernameIndex    = 1
		passwordIndex    = 2
		splitChar        = ":"
	)
	result := make(map[string]RegistryCredentials, len(creds))
	for _, c := range creds {
		parts := strings.SplitN(c, splitChar, 3)
		if len(parts) != 3 || parts[registryURLIndex] == "" || parts[usernameIndex] == "" || parts[passwordIndex] == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidCredential, redact(c))
		}
		result[parts[registryURLIndex]] = RegistryCredentials{
			Username: parts[usernameIndex],
			Password: parts[passwordIndex],
		}
	}
	return result, nil
}

// redact keeps the registry part of a credential entry for error messages.
func redact(entry string) string {
	if i := strings.Index(entry, ":"); i >= 0 {
		return entry[:i] + ":***"
	}
	return entry
}

// GenerateConfigText renders a docker config.json for the given credentials.
func GenerateConfigText(credentialsMap map[string]RegistryCredentials) (string, error) {
	cfg := configFile{Auths: make(map[string]authEntry, len(credentialsMap))}
	for registry, creds := range credentialsMap {
		cfg.Auths[registry] = authEntry{
			Username: creds.Username,
			Password: creds.Password,
			Auth:     base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password)),
		}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("error marshaling docker config: %w", err)
	}
	return string(b), nil
}

// WriteConfigToTempDir writes configText to config.json in a new temporary directory and returns the file path.
// The caller removes the directory.
func WriteConfigToTempDir(configText string) (string, error) {
	dir, err := os.MkdirTemp("", "docker-config-")
	if err != nil {
		return "", fmt.Errorf("error creating temp dir: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(configText), 0o600); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("error writing docker config: %w", err)
	}
	return path, nil
}
