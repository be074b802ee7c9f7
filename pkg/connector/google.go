package connector

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

type emailPayload struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"thread_id,omitempty"`
	InternalDate int64    `json:"internal_date,omitempty"`
	Date         string   `json:"date,omitempty"`
	Subject      string   `json:"subject,omitempty"`
	From         string   `json:"from,omitempty"`
	To           string   `json:"to,omitempty"`
	Cc           string   `json:"cc,omitempty"`
	Bcc          string   `json:"bcc,omitempty"`
	Body         string   `json:"body,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
	Labels       []string `json:"labels,omitempty"`
}

// GmailPayload converts a Gmail API message fetched with format=full into
// an email payload.
func GmailPayload(msg *gmail.Message) ([]byte, error) {
	if msg == nil || msg.Id == "" {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "gmail message has no id")
	}

	p := emailPayload{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
		Snippet:      msg.Snippet,
		Labels:       msg.LabelIds,
	}
	if msg.Payload != nil {
		headers := msg.Payload.Headers
		p.Subject = gmailHeader(headers, "Subject")
		p.From = gmailHeader(headers, "From")
		p.To = gmailHeader(headers, "To")
		p.Cc = gmailHeader(headers, "Cc")
		p.Bcc = gmailHeader(headers, "Bcc")
		if p.InternalDate == 0 {
			p.Date = gmailHeader(headers, "Date")
		}
		p.Body = gmailBody(msg.Payload)
	}

	return json.Marshal(p)
}

func gmailHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func decodeGmailData(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}

// gmailBody returns the plain text body, falling back to stripped HTML.
func gmailBody(part *gmail.MessagePart) string {
	var plain, html string

	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		if p == nil {
			return
		}
		if p.Body != nil && p.Body.Data != "" {
			if text, ok := decodeGmailData(p.Body.Data); ok {
				switch {
				case strings.HasPrefix(p.MimeType, "text/plain") && plain == "":
					plain = text
				case strings.HasPrefix(p.MimeType, "text/html") && html == "":
					html = text
				}
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	return stripHTML(html)
}

type calendarPerson struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

type calendarTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

type calendarPayload struct {
	ID          string           `json:"id"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Location    string           `json:"location,omitempty"`
	Start       *calendarTime    `json:"start"`
	End         *calendarTime    `json:"end,omitempty"`
	Organizer   *calendarPerson  `json:"organizer,omitempty"`
	Attendees   []calendarPerson `json:"attendees,omitempty"`
	Status      string           `json:"status,omitempty"`
}

// CalendarPayload converts a Google Calendar event into a calendar event
// payload.
func CalendarPayload(ev *calendar.Event) ([]byte, error) {
	if ev == nil || ev.Id == "" {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "calendar event has no id")
	}
	if ev.Start == nil {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "calendar event has no start", goerr.V("event_id", ev.Id))
	}

	p := calendarPayload{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendarTime{DateTime: ev.Start.DateTime, Date: ev.Start.Date},
		Status:      ev.Status,
	}
	if ev.End != nil {
		p.End = &calendarTime{DateTime: ev.End.DateTime, Date: ev.End.Date}
	}
	if ev.Organizer != nil {
		p.Organizer = &calendarPerson{DisplayName: ev.Organizer.DisplayName, Email: ev.Organizer.Email}
	}
	for _, a := range ev.Attendees {
		if a == nil || a.Resource {
			continue
		}
		p.Attendees = append(p.Attendees, calendarPerson{DisplayName: a.DisplayName, Email: a.Email})
	}

	return json.Marshal(p)
}
