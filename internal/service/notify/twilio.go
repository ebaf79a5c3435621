package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

const twilioAPIHost = "api.twilio.com"

var ErrTwilioNotConfigured = errors.New("twilio credentials or phone numbers are missing")

// TwilioNotifier sends SMS/MMS through the Twilio Messages resource.
type TwilioNotifier struct {
	sender
	httpClient *http.Client
	endpoint   *url.URL // nil sends to api.twilio.com
	accountSID string
	authToken  string
	from       string
	to         string
	logger     *logger.Logger
}

func NewTwilioNotifier(config *config.Config, client *http.Client, logger *logger.Logger) (*TwilioNotifier, error) {
	if config.TwilioAccountSID == "" || config.TwilioAuthToken == "" ||
		config.TwilioFromNumber == "" || config.TwilioToNumber == "" {
		return nil, ErrTwilioNotConfigured
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	endpoint, err := twilioEndpoint(config.TwilioBaseURL)
	if err != nil {
		return nil, err
	}

	n := &TwilioNotifier{
		httpClient: client,
		endpoint:   endpoint,
		accountSID: config.TwilioAccountSID,
		authToken:  config.TwilioAuthToken,
		from:       config.TwilioFromNumber,
		to:         config.TwilioToNumber,
		logger:     logger,
	}
	n.sender = sender{send: n.send}
	return n, nil
}

func twilioEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	endpoint, err := url.Parse(raw)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid TWILIO_BASE_URL %q", raw)
	}
	if endpoint.Host == twilioAPIHost {
		return nil, nil
	}
	return endpoint, nil
}

func (n *TwilioNotifier) send(ctx context.Context, msg Message) error {
	params := &api.CreateMessageParams{}
	params.SetPathAccountSid(n.accountSID)
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(msg.Body)
	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	created, err := n.restClient(ctx).Api.CreateMessage(params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("twilio request: %w", ctxErr)
		}
		return fmt.Errorf("twilio request failed: %w", err)
	}

	n.logger.Info("Twilio %s message queued: sid=%s status=%s", msg.Kind, deref(created.Sid), deref(created.Status))
	return nil
}

// restClient is built per call because CreateMessage takes no context; the
// transport carries ctx onto the request instead.
func (n *TwilioNotifier) restClient(ctx context.Context) *twilio.RestClient {
	httpClient := *n.httpClient
	httpClient.Transport = &requestTransport{
		ctx:      ctx,
		base:     n.httpClient.Transport,
		endpoint: n.endpoint,
	}

	client := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(n.accountSID, n.authToken),
		HTTPClient:  &httpClient,
	}
	client.SetAccountSid(n.accountSID)

	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   n.accountSID,
		Password:   n.authToken,
		AccountSid: n.accountSID,
		Client:     client,
	})
}

type requestTransport struct {
	ctx      context.Context
	base     http.RoundTripper
	endpoint *url.URL
}

func (t *requestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.ctx)
	if t.endpoint != nil {
		req.URL.Scheme = t.endpoint.Scheme
		req.URL.Host = t.endpoint.Host
		req.Host = t.endpoint.Host
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ Notifier = (*TwilioNotifier)(nil)
