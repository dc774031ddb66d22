package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mrz1836/postmark"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/metrics"
)

const defaultPostmarkURL = "https://api.postmarkapp.com"

// Postmark sends through the Postmark template API.
type Postmark struct {
	client *postmark.Client
}

// PostmarkOption applies a configuration option to Postmark.
type PostmarkOption func(*postmark.Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) PostmarkOption {
	return func(c *postmark.Client) {
		if u != "" {
			c.BaseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client. Its transport is wrapped to read
// response statuses.
func WithHTTPClient(hc *http.Client) PostmarkOption {
	return func(c *postmark.Client) {
		if hc != nil {
			cp := *hc
			c.HTTPClient = &cp
		}
	}
}

// NewPostmark creates a Postmark notifier authenticated with a server token.
func NewPostmark(token string, opts ...PostmarkOption) *Postmark {
	c := postmark.NewClient(token, "")
	c.BaseURL = defaultPostmarkURL
	c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}

	base := c.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.HTTPClient.Transport = statusTransport{next: base}
	return &Postmark{client: c}
}

type statusKey struct{}

// statusTransport stores the response status in the *int the request
// context carries under statusKey.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// Send posts email to /email/withTemplate. A numeric TemplateID is sent as
// TemplateId, anything else as TemplateAlias.
func (p *Postmark) Send(ctx context.Context, email model.Email) error {
	start := time.Now()
	err := p.send(ctx, email)
	outcome := "ok"
	switch {
	case err == nil:
	case IsTransient(err):
		outcome = "transient"
	default:
		outcome = "permanent"
	}
	metrics.ObserveNotifierLatency(outcome, time.Since(start).Seconds())
	return err
}

func (p *Postmark) send(ctx context.Context, email model.Email) error {
	msg := postmark.TemplatedEmail{
		From:          email.From,
		To:            email.To,
		TemplateModel: email.Model,
	}
	if id, err := strconv.ParseInt(email.TemplateID, 10, 64); err == nil {
		msg.TemplateID = id
	} else {
		msg.TemplateAlias = email.TemplateID
	}

	var status int
	res, err := p.client.SendTemplatedEmail(context.WithValue(ctx, statusKey{}, &status), msg)
	return classify(status, res.ErrorCode, res.Message, err)
}

// classify maps a Postmark call to the delivery taxonomy: throttling,
// server errors and network failures are transient; API error codes and
// other rejections are permanent. status is 0 when no response arrived.
func classify(status int, code int64, message string, err error) error {
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: postmark status %d: %s", ErrTransient, status, message)
	case code != 0:
		return fmt.Errorf("%w: postmark status %d code %d: %s", ErrPermanent, status, code, message)
	case err != nil && status == 0:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case err != nil:
		return fmt.Errorf("%w: postmark status %d: %w", ErrPermanent, status, err)
	case status >= http.StatusMultipleChoices:
		return fmt.Errorf("%w: postmark status %d: %s", ErrPermanent, status, message)
	default:
		return nil
	}
}
