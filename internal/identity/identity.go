// Package identity talks to the auth/identity microservice over NATS
// request-reply. Requests and responses are JSON; a request that times out
// or finds no responder is reported as "not found" (reads) or
// "unavailable" (writes), never as an opaque failure, because no
// side-effect state can be assumed either way.
package identity

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/logging"
)

// Subjects used by the identity service.
const (
	SubjectUserMetadataRead   = "lfx.identity.user_metadata.read"
	SubjectUserMetadataUpdate = "lfx.identity.user_metadata.update"
	SubjectEmailLink          = "lfx.identity.email.link"
)

// UserMetadata is the identity profile stored for a user.
type UserMetadata struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Zoneinfo string `json:"zoneinfo,omitempty"`
	JobTitle string `json:"job_title,omitempty"`
	Company  string `json:"organization,omitempty"`
}

// requester is the slice of *nats.Conn the client needs; tests substitute
// a fake.
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client issues identity requests over NATS.
type Client struct {
	conn    requester
	timeout time.Duration
	logger  *logging.Logger
}

// Connect dials the NATS server and returns a Client.
func Connect(url string, timeout time.Duration, logger *logging.Logger) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.Configuration("Failed to connect to NATS: " + err.Error())
	}
	return NewClient(conn, timeout, logger), nil
}

// NewClient wraps an existing connection.
func NewClient(conn requester, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{conn: conn, timeout: timeout, logger: logger}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// GetUserMetadata reads a user's identity profile. A timeout or missing
// responder yields NOT_FOUND: the service being silent is indistinguishable
// from the user being unknown, and callers handle both the same way.
func (c *Client) GetUserMetadata(ctx context.Context, username string) (*UserMetadata, error) {
	if username == "" {
		return nil, errors.Validation("username is required")
	}

	payload, _ := json.Marshal(map[string]string{"username": username})
	data, err := c.request(ctx, SubjectUserMetadataRead, payload)
	if err != nil {
		if isSilent(err) {
			c.logger.WithContext(ctx).WithError(err).
				WithField("username", username).
				Debug("Identity service silent, treating as not found")
			return nil, errors.NotFound("User metadata not found")
		}
		return nil, err
	}

	var meta UserMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Internal("Failed to decode user metadata", err)
	}
	return &meta, nil
}

// UpdateUserMetadata writes a user's identity profile. A silent service is
// surfaced as UNAVAILABLE so the caller knows the write outcome is unknown.
func (c *Client) UpdateUserMetadata(ctx context.Context, username string, meta UserMetadata) (*UserMetadata, error) {
	if username == "" {
		return nil, errors.Validation("username is required")
	}
	meta.Username = username

	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Internal("Failed to encode user metadata", err)
	}

	data, err := c.request(ctx, SubjectUserMetadataUpdate, payload)
	if err != nil {
		if isSilent(err) {
			return nil, errors.Unavailable("Identity service unavailable", err)
		}
		return nil, err
	}

	var updated UserMetadata
	if err := json.Unmarshal(data, &updated); err != nil {
		return nil, errors.Internal("Failed to decode user metadata", err)
	}
	return &updated, nil
}

// LinkEmail associates an additional email address with the user.
func (c *Client) LinkEmail(ctx context.Context, username, email string) error {
	if username == "" || email == "" {
		return errors.Validation("username and email are required")
	}

	payload, _ := json.Marshal(map[string]string{"username": username, "email": email})
	_, err := c.request(ctx, SubjectEmailLink, payload)
	if err != nil && isSilent(err) {
		return errors.Unavailable("Identity service unavailable", err)
	}
	return err
}

func (c *Client) request(ctx context.Context, subject string, payload []byte) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, errors.Internal("Failed to decode identity response", err)
	}
	if !resp.Success {
		message := resp.Error
		if message == "" {
			message = "Identity request rejected"
		}
		return nil, errors.Microservice(0, message, nil).WithDetails("subject", subject)
	}
	return resp.Data, nil
}

// isSilent reports whether the error means "no answer in time" rather than
// a definitive rejection.
func isSilent(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, nats.ErrNoResponders) ||
		stderrors.Is(err, nats.ErrTimeout)
}
