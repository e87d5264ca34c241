package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

const (
	vaultAuthTypeToken   = "token"
	vaultAuthTypeAppRole = "approle"

	vaultPrefix       = "vault:"
	defaultTransitKey = "connector-hub"
)

// VaultOptions configures the Transit sealer.
type VaultOptions struct {
	Address          string
	Namespace        string
	AuthType         string
	Token            string
	AppRoleMountPath string
	AppRoleRoleID    string
	AppRoleSecretID  string
	TLSSkipVerify    bool
	TLSCACertPEM     string

	TransitMount string
	TransitKey   string
}

// Vault seals through a Vault Transit key. Ciphertexts keep Transit's own
// "vault:vN:" prefix.
type Vault struct {
	client      *vaultapi.Client
	namespace   string
	addressHost string
	mount       string
	key         string
}

// NewVault authenticates to Vault and returns a Transit sealer.
func NewVault(opts VaultOptions) (*Vault, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	authType := strings.ToLower(strings.TrimSpace(opts.AuthType))
	if authType == "" {
		authType = vaultAuthTypeToken
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: buildHTTPTransport(opts.TLSSkipVerify, strings.TrimSpace(opts.TLSCACertPEM)),
	}
	addressHost := ""
	if parsed, err := neturl.Parse(address); err == nil {
		addressHost = strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace != "" {
		client.SetNamespace(namespace)
	}

	switch authType {
	case vaultAuthTypeToken:
		token := strings.TrimSpace(opts.Token)
		if token == "" {
			return nil, errors.New("vault token is required")
		}
		client.SetToken(token)
	case vaultAuthTypeAppRole:
		roleID := strings.TrimSpace(opts.AppRoleRoleID)
		secretID := strings.TrimSpace(opts.AppRoleSecretID)
		mountPath := normalizeMountPath(opts.AppRoleMountPath)
		if mountPath == "" {
			mountPath = "approle"
		}
		if roleID == "" {
			return nil, errors.New("vault AppRole role ID is required")
		}
		if secretID == "" {
			return nil, errors.New("vault AppRole secret ID is required")
		}
		loginPath := "auth/" + mountPath + "/login"
		secret, err := client.Logical().Write(loginPath, map[string]any{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login at %s: %w", loginPath, err)
		}
		if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
			return nil, errors.New("vault approle login succeeded without client token")
		}
		client.SetToken(secret.Auth.ClientToken)
	default:
		return nil, errors.New("vault auth type is invalid")
	}

	mount := normalizeMountPath(opts.TransitMount)
	if mount == "" {
		mount = "transit"
	}
	key := strings.TrimSpace(opts.TransitKey)
	if key == "" {
		key = defaultTransitKey
	}

	return &Vault{
		client:      client,
		namespace:   namespace,
		addressHost: addressHost,
		mount:       mount,
		key:         key,
	}, nil
}

func (v *Vault) Seal(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	path := v.mount + "/encrypt/" + neturl.PathEscape(v.key)
	secret, err := v.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString([]byte(plaintext)),
	})
	if err != nil {
		return "", fmt.Errorf("vault write %s: %w", path, v.withNamespaceHint(err))
	}
	ciphertext := dataString(secret, "ciphertext")
	if !strings.HasPrefix(ciphertext, vaultPrefix) {
		return "", errors.New("vault transit returned no ciphertext")
	}
	return ciphertext, nil
}

func (v *Vault) Open(ctx context.Context, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, vaultPrefix) {
		return "", ErrUnknownFormat
	}
	path := v.mount + "/decrypt/" + neturl.PathEscape(v.key)
	secret, err := v.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"ciphertext": sealed,
	})
	if err != nil {
		return "", fmt.Errorf("vault write %s: %w", path, v.withNamespaceHint(err))
	}
	plaintext, err := base64.StdEncoding.DecodeString(dataString(secret, "plaintext"))
	if err != nil {
		return "", fmt.Errorf("vault transit plaintext: %w", err)
	}
	return string(plaintext), nil
}

func dataString(secret *vaultapi.Secret, key string) string {
	if secret == nil || secret.Data == nil {
		return ""
	}
	s, _ := secret.Data[key].(string)
	return s
}

func normalizeMountPath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func (v *Vault) withNamespaceHint(err error) error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(v.namespace) != "" {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(v.addressHost)), ".hashicorp.cloud") {
		return err
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "permission denied") && !strings.Contains(msg, "403") {
		return err
	}
	return fmt.Errorf("%w (tip: set VAULT_NAMESPACE to \"admin\" for HCP Vault Dedicated)", err)
}

func buildHTTPTransport(skipVerify bool, caCertPEM string) http.RoundTripper {
	base, _ := http.DefaultTransport.(*http.Transport)
	if base == nil {
		return http.DefaultTransport
	}
	transport := base.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12
	transport.TLSClientConfig.InsecureSkipVerify = skipVerify
	if strings.TrimSpace(caCertPEM) != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCertPEM)) {
			transport.TLSClientConfig.RootCAs = pool
		}
	}
	return transport
}
