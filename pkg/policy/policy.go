// Package policy evaluates optional Rego ingest policies that decide
// whether a normalized record may enter the index.
package policy

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const query = "data.ingest"

// regoPrintHook forwards Rego print() statements to the context logger
type regoPrintHook struct{}

func (h *regoPrintHook) Print(ctx print.Context, message string) error {
	logger := logging.Default()
	if ctx.Context != nil {
		logger = logging.From(ctx.Context)
	}
	logger.Debug("rego print", "message", message)
	return nil
}

// Decision is the outcome of the ingest policy for one record.
type Decision struct {
	Allow  bool
	Reason string
}

// Policy holds a prepared ingest query. A nil *Policy allows everything.
type Policy struct {
	ingest *rego.PreparedEvalQuery
}

// Load reads every *.rego file from dir. An empty dir, or a dir without
// policy files, yields a nil Policy.
func Load(ctx context.Context, dir string) (*Policy, error) {
	if dir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := []func(*rego.Rego){
		rego.Query(query),
		rego.EnablePrintStatements(true),
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare ingest policy", goerr.V("dir", dir))
	}

	return &Policy{ingest: &prepared}, nil
}

// Evaluate runs the policy for rec. The policy document may define
// `allow` (default true) and `reason`.
func (p *Policy) Evaluate(ctx context.Context, rec *model.Record) (*Decision, error) {
	if p == nil || p.ingest == nil {
		return &Decision{Allow: true}, nil
	}

	fields := make(map[string]any, len(rec.RawFields))
	for k, v := range rec.RawFields {
		fields[k] = v
	}
	input := map[string]any{
		"owner_id":  string(rec.OwnerID),
		"source":    string(rec.Source),
		"source_id": rec.SourceID,
		"timestamp": rec.Timestamp.UTC().Format(time.RFC3339),
		"fields":    fields,
	}

	rs, err := p.ingest.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate ingest policy", goerr.V("record", rec.Key().String()))
	}

	decision := &Decision{Allow: true}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return decision, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("ingest policy result is not an object", goerr.V("record", rec.Key().String()))
	}
	if allow, ok := data["allow"].(bool); ok {
		decision.Allow = allow
	}
	if reason, ok := data["reason"].(string); ok {
		decision.Reason = reason
	}
	return decision, nil
}
