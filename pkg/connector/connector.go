// Package connector adapts provider data into payloads for the ingest
// pipeline. Connectors never look at record content beyond conversion.
package connector

import (
	"encoding/json"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

// Sink accepts payloads for background ingestion. ingest.Worker satisfies
// it.
type Sink interface {
	Enqueue(owner model.OwnerID, source model.Source, payload []byte) error
}

// Format is the shape of incoming data.
type Format string

const (
	// FormatJSON is a provider payload already in one of the accepted
	// source schemas.
	FormatJSON           Format = "json"
	FormatGmail          Format = "gmail"
	FormatGoogleCalendar Format = "google_calendar"
	FormatEML            Format = "eml"
)

// Convert turns data of the given format into a payload and the source it
// belongs to. source is only consulted for FormatJSON.
func Convert(format Format, source model.Source, data []byte) (model.Source, []byte, error) {
	switch format {
	case FormatJSON, "":
		if err := source.Validate(); err != nil {
			return "", nil, err
		}
		return source, data, nil

	case FormatGmail:
		var msg gmail.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", nil, goerr.Wrap(model.WithCause(model.ErrMalformedSourceData, err), "invalid gmail message")
		}
		payload, err := GmailPayload(&msg)
		return model.SourceEmail, payload, err

	case FormatGoogleCalendar:
		var ev calendar.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", nil, goerr.Wrap(model.WithCause(model.ErrMalformedSourceData, err), "invalid calendar event")
		}
		payload, err := CalendarPayload(&ev)
		return model.SourceCalendarEvent, payload, err

	case FormatEML:
		payload, err := EMLPayload(data)
		return model.SourceEmail, payload, err

	default:
		return "", nil, goerr.Wrap(model.ErrMalformedSourceData, "unknown format", goerr.V("format", format))
	}
}
