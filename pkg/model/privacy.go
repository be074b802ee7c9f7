package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// PrivacyMode is the per-owner data handling regime. Entries keep the mode
// they were stored under.
type PrivacyMode string

const (
	PrivacyModeRaw        PrivacyMode = "raw"
	PrivacyModeAnonymized PrivacyMode = "anonymized"
)

// Validate checks if the privacy mode is valid
func (m PrivacyMode) Validate() error {
	switch m {
	case PrivacyModeRaw, PrivacyModeAnonymized:
		return nil
	default:
		return goerr.Wrap(ErrInvalidPrivacyMode, "unknown privacy mode", goerr.V("mode", string(m)))
	}
}

// KeyRef names a data key held by the key service. It never carries key
// material.
type KeyRef struct {
	OwnerID OwnerID `json:"owner_id"`
	KeyID   string  `json:"key_id"`
}

// DataKey is key material handed out by the key service for one owner.
type DataKey struct {
	Ref      KeyRef
	Material []byte
}

// Payload is the processed form of a record. It is either an
// *EncryptedPayload or an *AnonymizedPayload.
type Payload interface {
	Mode() PrivacyMode
	// SurrogateText is the only text that may be embedded or logged for
	// the payload.
	SurrogateText() string
	isPayload()
}

// EncryptedPayload holds the sealed raw fields of a record. Ciphertext is
// nonce followed by the AES-GCM output, which ends with the integrity tag.
// RecordKey is bound into the ciphertext as additional data.
type EncryptedPayload struct {
	Ciphertext []byte
	KeyRef     KeyRef
	RecordKey  RecordKey
	Surrogate  string
}

func (p *EncryptedPayload) Mode() PrivacyMode     { return PrivacyModeRaw }
func (p *EncryptedPayload) SurrogateText() string { return p.Surrogate }
func (p *EncryptedPayload) isPayload()            {}

// AnonymizedPayload holds a de-identified summary of a record.
type AnonymizedPayload struct {
	Summary   string
	Surrogate string
}

func (p *AnonymizedPayload) Mode() PrivacyMode     { return PrivacyModeAnonymized }
func (p *AnonymizedPayload) SurrogateText() string { return p.Surrogate }
func (p *AnonymizedPayload) isPayload()            {}

// IdentifierKind is the category of a detected identifier.
type IdentifierKind string

const (
	IdentifierPerson       IdentifierKind = "person"
	IdentifierEmail        IdentifierKind = "email"
	IdentifierPhone        IdentifierKind = "phone"
	IdentifierAccount      IdentifierKind = "account"
	IdentifierOrganization IdentifierKind = "organization"
	IdentifierLocation     IdentifierKind = "location"
	IdentifierNationalID   IdentifierKind = "national_id"
)

// Token returns the anonymization token prefix for the kind.
func (k IdentifierKind) Token() string {
	switch k {
	case IdentifierPerson:
		return "colleague"
	case IdentifierEmail:
		return "email-address"
	case IdentifierPhone:
		return "phone-number"
	case IdentifierAccount:
		return "account-number"
	case IdentifierOrganization:
		return "organization"
	case IdentifierLocation:
		return "location"
	case IdentifierNationalID:
		return "id-number"
	default:
		return "identifier"
	}
}

// IdentifierSpan is a byte range of a summary reported as an identifier.
type IdentifierSpan struct {
	Start int            `json:"start"`
	End   int            `json:"end"`
	Kind  IdentifierKind `json:"kind"`
}

// Summary is what the summarization service returns.
type Summary struct {
	Text        string
	Identifiers []IdentifierSpan
}
