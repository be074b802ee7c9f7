package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const settingsCollection = "privacy_settings"

// Firestore stores privacy settings, one document per owner. Record
// content is never written here.
type Firestore struct {
	client *firestore.Client
}

var _ interfaces.SettingsRepository = (*Firestore)(nil)

type settingsDoc struct {
	Mode      string    `firestore:"mode"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestore creates a new Firestore settings repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) GetMode(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, bool, error) {
	snap, err := r.client.Collection(settingsCollection).Doc(string(owner)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to get settings", goerr.V("owner_id", owner))
	}

	var doc settingsDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, goerr.Wrap(err, "failed to decode settings", goerr.V("owner_id", owner))
	}

	mode := model.PrivacyMode(doc.Mode)
	if err := mode.Validate(); err != nil {
		return "", false, goerr.Wrap(err, "stored mode is invalid", goerr.V("owner_id", owner))
	}
	return mode, true, nil
}

func (r *Firestore) PutMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}

	doc := settingsDoc{Mode: string(mode), UpdatedAt: time.Now().UTC()}
	if _, err := r.client.Collection(settingsCollection).Doc(string(owner)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put settings", goerr.V("owner_id", owner))
	}
	return nil
}

func (r *Firestore) DeleteSettings(ctx context.Context, owner model.OwnerID) error {
	if _, err := r.client.Collection(settingsCollection).Doc(string(owner)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete settings", goerr.V("owner_id", owner))
	}
	return nil
}

// Owners lists owners that have stored settings.
func (r *Firestore) Owners(ctx context.Context) ([]model.OwnerID, error) {
	iter := r.client.Collection(settingsCollection).Documents(ctx)
	defer iter.Stop()

	var owners []model.OwnerID
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate settings")
		}
		owners = append(owners, model.OwnerID(snap.Ref.ID))
	}
	return owners, nil
}
