package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/policy"
	"github.com/m-mizutani/gt"
)

func record(source model.Source, fields map[string]string) *model.Record {
	return &model.Record{
		OwnerID:   "u-1",
		Source:    source,
		SourceID:  "id-1",
		Version:   "v",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RawFields: fields,
	}
}

func TestNoPolicyAllowsAll(t *testing.T) {
	ctx := context.Background()

	p, err := policy.Load(ctx, "")
	gt.NoError(t, err)
	gt.Nil(t, p)

	p, err = policy.Load(ctx, t.TempDir())
	gt.NoError(t, err)

	d, err := p.Evaluate(ctx, record(model.SourceEmail, nil))
	gt.NoError(t, err)
	gt.True(t, d.Allow)
}

func TestContactBlocklist(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ingestPolicy := `package ingest

blocked_contacts := {"therapist@clinic.test"}

default allow := true

allow := false if {
	some c in blocked_contacts
	contains(lower(input.fields.from), c)
}

allow := false if {
	input.source == "transaction"
	input.owner_id == "u-no-finance"
}

reason := "contact excluded by user" if {
	not allow
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "ingest.rego"), []byte(ingestPolicy), 0644))

	p, err := policy.Load(ctx, dir)
	gt.NoError(t, err)

	d, err := p.Evaluate(ctx, record(model.SourceEmail, map[string]string{"from": "Dr. Lee <Therapist@clinic.test>"}))
	gt.NoError(t, err)
	gt.False(t, d.Allow)
	gt.Equal(t, d.Reason, "contact excluded by user")

	d, err = p.Evaluate(ctx, record(model.SourceEmail, map[string]string{"from": "boss@work.test"}))
	gt.NoError(t, err)
	gt.True(t, d.Allow)
	gt.Equal(t, d.Reason, "")

	d, err = p.Evaluate(ctx, record(model.SourceTransaction, map[string]string{"amount": "1"}))
	gt.NoError(t, err)
	gt.True(t, d.Allow)
}

func TestInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package ingest\nallow := {"), 0644))

	_, err := policy.Load(context.Background(), dir)
	gt.Error(t, err)
}
