// Package credentials seals OAuth token material before it is written to
// storage and opens it again on read.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	SealerLocal = "local"
	SealerVault = "vault"
)

// ErrUnknownFormat is returned when a stored value was not produced by the sealer.
var ErrUnknownFormat = errors.New("sealed credential has an unknown format")

// Sealer encrypts and decrypts credential strings. Empty strings pass through
// unchanged in both directions.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, sealed string) (string, error)
}

// Options selects and configures a Sealer.
type Options struct {
	Kind     string
	LocalKey string
	Vault    VaultOptions
}

// New builds the sealer named by opts.Kind.
func New(opts Options) (Sealer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", SealerLocal:
		key, err := ParseKey(opts.LocalKey)
		if err != nil {
			return nil, err
		}
		return NewLocal(key)
	case SealerVault:
		return NewVault(opts.Vault)
	default:
		return nil, fmt.Errorf("unknown credential sealer %q", opts.Kind)
	}
}
