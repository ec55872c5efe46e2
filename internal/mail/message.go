// Package mail models mailbox messages as a tree of MIME parts and defines
// the provider contract the ingestion engine reads from.
package mail

import (
	"context"
	netmail "net/mail"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Provider is a read-only view of a mailbox.
type Provider interface {
	ListMessages(ctx context.Context, query string, maxResults int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

type Header struct {
	Name  string
	Value string
}

// Part is one node of a MIME tree. Leaf parts carry either inline Data or
// an AttachmentID that must be fetched separately.
type Part struct {
	MimeType     string
	Filename     string
	AttachmentID string
	Size         int64
	Data         []byte
	Headers      []Header
	Parts        []*Part
}

type Message struct {
	ID      string
	Headers []Header
	Payload *Part
}

// AttachmentRef points at a downloadable attachment of a message.
type AttachmentRef struct {
	MessageID    string
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// Header returns the first header value with the given name, ignoring case.
func (m *Message) Header(name string) string {
	if m == nil {
		return ""
	}
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (m *Message) Subject() string { return m.Header("Subject") }

func (m *Message) From() string { return m.Header("From") }

// SenderAddress returns the bare address of the From header, or the raw
// header when it cannot be parsed.
func (m *Message) SenderAddress() string {
	from := m.From()
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// Date parses the Date header. The second result is false when it is missing or invalid.
func (m *Message) Date() (time.Time, bool) {
	raw := strings.TrimSpace(m.Header("Date"))
	if raw == "" {
		return time.Time{}, false
	}
	t, err := netmail.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Walk visits every part depth-first in document order.
func (m *Message) Walk(visit func(*Part)) {
	if m == nil || m.Payload == nil {
		return
	}
	stack := []*Part{m.Payload}
	for len(stack) > 0 {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if part == nil {
			continue
		}
		visit(part)
		for i := len(part.Parts) - 1; i >= 0; i-- {
			stack = append(stack, part.Parts[i])
		}
	}
}

// Attachments lists every part with both a file name and an attachment id.
func (m *Message) Attachments() []AttachmentRef {
	var refs []AttachmentRef
	m.Walk(func(p *Part) {
		if p.Filename == "" || p.AttachmentID == "" {
			return
		}
		refs = append(refs, AttachmentRef{
			MessageID:    m.ID,
			AttachmentID: p.AttachmentID,
			Filename:     p.Filename,
			MimeType:     p.MimeType,
			Size:         p.Size,
		})
	})
	return refs
}

// Body returns the plain text body. HTML parts are converted to markdown
// only when the message has no text/plain part.
func (m *Message) Body() string {
	var plain, html []string
	m.Walk(func(p *Part) {
		if p.Filename != "" || len(p.Data) == 0 {
			return
		}
		switch strings.ToLower(p.MimeType) {
		case "text/plain":
			plain = append(plain, string(p.Data))
		case "text/html":
			html = append(html, string(p.Data))
		}
	})

	if len(plain) > 0 {
		return strings.TrimSpace(strings.Join(plain, "\n"))
	}

	converted := make([]string, 0, len(html))
	for _, h := range html {
		md, err := htmltomarkdown.ConvertString(h)
		if err != nil {
			md = h
		}
		converted = append(converted, md)
	}
	return strings.TrimSpace(strings.Join(converted, "\n"))
}
