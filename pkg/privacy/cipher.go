package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const nonceSize = 12

// seal encrypts fields with AES-GCM. The result is nonce || ciphertext || tag.
func seal(key []byte, fields []byte, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize, nonceSize+len(fields)+aesgcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, goerr.Wrap(err, "failed to generate nonce")
	}

	return aesgcm.Seal(nonce, nonce, fields, aad), nil
}

func open(key []byte, sealed []byte, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrDecryptionFailure, err), "invalid key")
	}
	if len(sealed) < nonceSize+aesgcm.Overhead() {
		return nil, goerr.Wrap(model.ErrDecryptionFailure, "ciphertext too short", goerr.V("length", len(sealed)))
	}

	plaintext, err := aesgcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], aad)
	if err != nil {
		return nil, goerr.Wrap(model.ErrDecryptionFailure, "failed to open ciphertext")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cipher", goerr.V("key_length", len(key)))
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCM")
	}
	return aesgcm, nil
}

// additionalData binds a ciphertext to its owner and record version so a
// blob cannot be replayed under another owner or record.
func additionalData(owner model.OwnerID, key model.RecordKey) []byte {
	raw, err := json.Marshal(struct {
		Owner model.OwnerID   `json:"owner_id"`
		Key   model.RecordKey `json:"record_key"`
	}{owner, key})
	if err != nil {
		panic(err)
	}
	return raw
}
