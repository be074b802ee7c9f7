// Package keys provides a key service that derives per-owner data keys on
// demand from a process-held master secret. Derived keys are never stored.
package keys

import (
	"context"
	"crypto/sha256"
	"io"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/crypto/hkdf"
)

const (
	KeyID     = "hkdf-sha256-v1"
	keyLength = 32
	// minSecretLength guards against weak master secrets.
	minSecretLength = 16
)

var ErrNoMasterSecret = goerr.New("master secret is not configured")

type HKDF struct {
	secret []byte
	salt   []byte
}

// NewHKDF creates a key service. An empty secret yields a service whose
// every call fails, which keeps RAW mode unusable instead of insecure.
func NewHKDF(secret, salt []byte) (*HKDF, error) {
	if len(secret) > 0 && len(secret) < minSecretLength {
		return nil, goerr.New("master secret is too short", goerr.V("min_length", minSecretLength))
	}
	return &HKDF{
		secret: append([]byte(nil), secret...),
		salt:   append([]byte(nil), salt...),
	}, nil
}

func (h *HKDF) DataKey(ctx context.Context, owner model.OwnerID) (*model.DataKey, error) {
	if len(h.secret) == 0 {
		return nil, goerr.Wrap(ErrNoMasterSecret, "cannot derive data key", goerr.V("owner_id", owner))
	}
	if owner == "" {
		return nil, goerr.New("owner id is empty")
	}

	material := make([]byte, keyLength)
	r := hkdf.New(sha256.New, h.secret, h.salt, []byte("facsimile/data-key/"+string(owner)))
	if _, err := io.ReadFull(r, material); err != nil {
		return nil, goerr.Wrap(err, "failed to derive data key", goerr.V("owner_id", owner))
	}

	return &model.DataKey{
		Ref:      model.KeyRef{OwnerID: owner, KeyID: KeyID},
		Material: material,
	}, nil
}
