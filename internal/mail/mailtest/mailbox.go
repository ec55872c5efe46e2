// Package mailtest provides an in-memory mail.Provider.
package mailtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/spigell/cvsift/internal/mail"
)

// Mailbox serves messages in insertion order and counts fetches.
type Mailbox struct {
	mu          sync.Mutex
	order       []string
	messages    map[string]*mail.Message
	attachments map[string][]byte

	Queries          []string
	MessageFetches   map[string]int
	AttachmentGets   map[string]int
	ListErr          error
	FailAttachmentID string
}

func New() *Mailbox {
	return &Mailbox{
		messages:       make(map[string]*mail.Message),
		attachments:    make(map[string][]byte),
		MessageFetches: make(map[string]int),
		AttachmentGets: make(map[string]int),
	}
}

// AddPDF stores a message with a single PDF attachment.
func (b *Mailbox) AddPDF(id, from, subject, body, filename string, data []byte) {
	attID := id + "-att"
	b.Add(&mail.Message{
		ID: id,
		Headers: []mail.Header{
			{Name: "From", Value: from},
			{Name: "Subject", Value: subject},
			{Name: "Date", Value: "Mon, 04 Mar 2024 09:00:00 +0000"},
		},
		Payload: &mail.Part{
			MimeType: "multipart/mixed",
			Parts: []*mail.Part{
				{MimeType: "text/plain", Data: []byte(body)},
				{MimeType: "application/pdf", Filename: filename, AttachmentID: attID, Size: int64(len(data))},
			},
		},
	}, map[string][]byte{attID: data})
}

// Add stores msg and the bytes of its attachments keyed by attachment id.
func (b *Mailbox) Add(msg *mail.Message, attachments map[string][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.messages[msg.ID]; !ok {
		b.order = append(b.order, msg.ID)
	}
	b.messages[msg.ID] = msg
	for id, data := range attachments {
		b.attachments[msg.ID+"/"+id] = data
	}
}

func (b *Mailbox) ListMessages(_ context.Context, query string, maxResults int64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Queries = append(b.Queries, query)
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	ids := append([]string(nil), b.order...)
	if maxResults > 0 && int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (b *Mailbox) GetMessage(_ context.Context, id string) (*mail.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.MessageFetches[id]++
	msg, ok := b.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return msg, nil
}

func (b *Mailbox) GetAttachment(_ context.Context, messageID, attachmentID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AttachmentGets[attachmentID]++
	if attachmentID == b.FailAttachmentID {
		return nil, fmt.Errorf("attachment %s unavailable", attachmentID)
	}
	data, ok := b.attachments[messageID+"/"+attachmentID]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found", attachmentID)
	}
	return data, nil
}
