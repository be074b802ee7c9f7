// Package normalizer converts provider payloads into canonical records.
package normalizer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// field maps a canonical raw field name to the payload keys it may arrive
// under. The first present alias wins.
type field struct {
	name    string
	aliases []string
}

type schema struct {
	id        []string
	timestamp []string
	fields    []field
}

var schemas = map[model.Source]schema{
	model.SourceEmail: {
		id:        []string{"id", "message_id", "messageId"},
		timestamp: []string{"date", "internal_date", "internalDate", "timestamp"},
		fields: []field{
			{"subject", []string{"subject"}},
			{"body", []string{"body", "text", "content"}},
			{"snippet", []string{"snippet"}},
			{"from", []string{"from", "sender"}},
			{"to", []string{"to", "recipients"}},
			{"cc", []string{"cc"}},
			{"bcc", []string{"bcc"}},
			{"thread_id", []string{"thread_id", "threadId"}},
			{"labels", []string{"labels", "labelIds"}},
		},
	},
	model.SourceCalendarEvent: {
		id:        []string{"id", "event_id", "iCalUID"},
		timestamp: []string{"start", "start_time", "timestamp"},
		fields: []field{
			{"title", []string{"title", "summary"}},
			{"description", []string{"description"}},
			{"location", []string{"location"}},
			{"organizer", []string{"organizer"}},
			{"attendees", []string{"attendees"}},
			{"end", []string{"end", "end_time"}},
			{"status", []string{"status"}},
		},
	},
	model.SourceTransaction: {
		id:        []string{"transaction_id", "id"},
		timestamp: []string{"date", "posted_at", "authorized_date", "timestamp"},
		fields: []field{
			{"amount", []string{"amount"}},
			{"currency", []string{"currency", "iso_currency_code"}},
			{"merchant", []string{"merchant", "merchant_name"}},
			{"description", []string{"description", "name"}},
			{"category", []string{"category"}},
			{"account_number", []string{"account_number", "account_id", "account"}},
			{"counterparty", []string{"counterparty"}},
		},
	},
}

// Normalize converts a JSON provider payload into a Record owned by owner.
// It is pure: the same input always yields a Record with identical
// Canonical() bytes. Unrecognized keys are dropped.
func Normalize(owner model.OwnerID, source model.Source, payload []byte) (*model.Record, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	sc := schemas[source]

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrMalformedSourceData, err), "payload is not a JSON object",
			goerr.V("source", source))
	}
	if obj == nil {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "payload is null", goerr.V("source", source))
	}

	sourceID, ok := lookupString(obj, sc.id)
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "source_id is missing", goerr.V("source", source))
	}

	ts, ok := lookupTime(obj, sc.timestamp)
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "timestamp is missing or unparsable",
			goerr.V("source", source), goerr.V("source_id", sourceID))
	}

	fields := make(map[string]string, len(sc.fields))
	for _, f := range sc.fields {
		if v, ok := lookupString(obj, f.aliases); ok {
			fields[f.name] = v
		}
	}

	rec := &model.Record{
		OwnerID:   owner,
		Source:    source,
		SourceID:  sourceID,
		Timestamp: ts,
		RawFields: fields,
	}
	rec.Version = version(rec)

	return rec, nil
}

// version derives a content hash so that a provider update yields a new
// record version and a repeated payload yields the same one.
func version(rec *model.Record) string {
	sum := sha256.Sum256(rec.Canonical())
	return hex.EncodeToString(sum[:8])
}

func lookupString(obj map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if s, ok := stringify(v); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func lookupTime(obj map[string]any, keys []string) (time.Time, bool) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if t, ok := parseTime(v); ok {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := stringify(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), len(parts) > 0
	case map[string]any:
		return stringifyObject(x)
	default:
		return "", false
	}
}

// stringifyObject renders the nested objects providers commonly send:
// people ({displayName, email}) and calendar times ({dateTime} or {date}).
func stringifyObject(obj map[string]any) (string, bool) {
	if s, ok := lookupString(obj, []string{"dateTime", "date"}); ok {
		return s, true
	}

	name, hasName := lookupString(obj, []string{"displayName", "name"})
	email, hasEmail := lookupString(obj, []string{"email", "address"})
	switch {
	case hasName && hasEmail:
		return name + " <" + email + ">", true
	case hasName:
		return name, true
	case hasEmail:
		return email, true
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := stringify(obj[k]); ok {
			parts = append(parts, k+": "+s)
		}
	}
	return strings.Join(parts, "; "), len(parts) > 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return fromUnix(n), true
		}
		if f, err := x.Float64(); err == nil {
			return fromUnix(int64(f)), true
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n), true
		}
		if i := strings.Index(s, " ("); i > 0 {
			// "Mon, 2 Jan 2006 15:04:05 -0700 (UTC)"
			s = s[:i]
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	case map[string]any:
		for _, key := range []string{"dateTime", "date"} {
			if inner, ok := x[key]; ok {
				return parseTime(inner)
			}
		}
	}
	return time.Time{}, false
}

// fromUnix accepts seconds or milliseconds since the epoch.
func fromUnix(n int64) time.Time {
	if n > 1e11 || n < -1e11 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
