// Package gmail implements mail.Provider on top of the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spigell/cvsift/internal/mail"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	defaultUser              = "me"
	defaultRequestsPerSecond = 5
	maxPageSize              = 500
)

type Config struct {
	// CredentialsFile is the OAuth client JSON downloaded from the Google console.
	CredentialsFile string
	// TokenFile holds a previously authorized oauth2.Token as JSON.
	TokenFile         string
	User              string
	RequestsPerSecond float64
}

type Client struct {
	svc     *gmailapi.Service
	user    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a client from an OAuth client file and a stored token. The
// token is refreshed in memory by the oauth2 token source when it expires.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	creds, err := os.ReadFile(strings.TrimSpace(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(creds, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials: %w", err)
	}

	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an already configured Gmail service.
func NewWithService(svc *gmailapi.Service, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = defaultUser
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Limit(defaultRequestsPerSecond)
	}

	return &Client{
		svc:     svc,
		user:    user,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(zap.String("mailbox", user)),
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("gmail token file is not configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gmail token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing gmail token: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("gmail token file %q has neither access nor refresh token", path)
	}

	return &token, nil
}

// ListMessages pages through search results until maxResults ids are collected.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int64) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)

	for {
		pageSize := int64(maxPageSize)
		if maxResults > 0 {
			pageSize = min(maxResults-int64(len(ids)), maxPageSize)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return ids, err
		}

		call := c.svc.Users.Messages.List(c.user).Q(query).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return ids, fmt.Errorf("listing messages: %w", err)
		}

		for _, m := range resp.Messages {
			if m == nil || m.Id == "" {
				continue
			}
			ids = append(ids, m.Id)
		}

		c.logger.Debug("listed message page",
			zap.Int("page_size", len(resp.Messages)),
			zap.Int("collected", len(ids)),
		)

		if resp.NextPageToken == "" || (maxResults > 0 && int64(len(ids)) >= maxResults) {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (c *Client) GetMessage(ctx context.Context, id string) (*mail.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}

	return convertMessage(msg)
}

func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.svc.Users.Messages.Attachments.Get(c.user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting attachment %s of message %s: %w", attachmentID, messageID, err)
	}

	data, err := decodeData(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment %s: %w", attachmentID, err)
	}

	return data, nil
}

func convertMessage(src *gmailapi.Message) (*mail.Message, error) {
	msg := &mail.Message{ID: src.Id}
	if src.Payload == nil {
		return msg, nil
	}

	type pending struct {
		src *gmailapi.MessagePart
		dst *mail.Part
	}

	root := &mail.Part{}
	queue := []pending{{src: src.Payload, dst: root}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		item.dst.MimeType = item.src.MimeType
		item.dst.Filename = item.src.Filename
		for _, h := range item.src.Headers {
			if h == nil {
				continue
			}
			item.dst.Headers = append(item.dst.Headers, mail.Header{Name: h.Name, Value: h.Value})
		}

		if body := item.src.Body; body != nil {
			item.dst.AttachmentID = body.AttachmentId
			item.dst.Size = body.Size
			if body.Data != "" {
				data, err := decodeData(body.Data)
				if err != nil {
					return nil, fmt.Errorf("decoding part %q of message %s: %w", item.src.PartId, src.Id, err)
				}
				item.dst.Data = data
			}
		}

		for _, child := range item.src.Parts {
			if child == nil {
				continue
			}
			part := &mail.Part{}
			item.dst.Parts = append(item.dst.Parts, part)
			queue = append(queue, pending{src: child, dst: part})
		}
	}

	msg.Payload = root
	msg.Headers = root.Headers
	return msg, nil
}

// decodeData accepts padded and unpadded URL-safe base64 as returned by Gmail.
func decodeData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
