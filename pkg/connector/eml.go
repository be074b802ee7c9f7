package connector

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/m-mizutani/goerr/v2"
)

// EMLPayload converts an RFC 5322 message into an email payload. Messages
// without a Message-ID get an id derived from their content.
func EMLPayload(raw []byte) ([]byte, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, goerr.Wrap(model.WithCause(model.ErrMalformedSourceData, err), "failed to parse message")
	}
	defer mr.Close()

	h := mr.Header
	p := emailPayload{}

	p.ID, _ = h.MessageID()
	if p.ID == "" {
		sum := sha256.Sum256(raw)
		p.ID = "eml-" + hex.EncodeToString(sum[:8])
	}
	if subject, err := h.Subject(); err == nil {
		p.Subject = subject
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		p.Date = date.UTC().Format("2006-01-02T15:04:05Z07:00")
	} else {
		return nil, goerr.Wrap(model.ErrMalformedSourceData, "message has no valid Date header", goerr.V("message_id", p.ID))
	}
	p.From = addressList(h, "From")
	p.To = addressList(h, "To")
	p.Cc = addressList(h, "Cc")
	p.Bcc = addressList(h, "Bcc")

	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, goerr.Wrap(model.WithCause(model.ErrMalformedSourceData, err), "failed to read message part",
				goerr.V("message_id", p.ID))
		}

		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case ct == "text/plain" && plain == "":
			plain = string(body)
		case ct == "text/html" && html == "":
			html = string(body)
		}
	}

	if plain != "" {
		p.Body = strings.TrimSpace(plain)
	} else {
		p.Body = stripHTML(html)
	}

	return json.Marshal(p)
}

func addressList(h mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get(key))
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, a.Name+" <"+a.Address+">")
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}
