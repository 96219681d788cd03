package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultSMSTimeout = 15 * time.Second
	defaultSMSBaseURL = "https://www.smslocal.com/dev/bulkV2"
)

// ErrSMSNotConfigured is returned when the gateway has no API key.
var ErrSMSNotConfigured = errors.New("sms: API key not configured")

// SMSGateway sends OTP SMS through an HTTP bulk gateway (route=otp). Calls are throttled
// client-side and guarded by a circuit breaker so a failing gateway is not hammered.
type SMSGateway struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewSMSGateway returns a gateway using apiKey. baseURL and sender are optional; perSecond caps
// outbound requests (0 disables the cap).
func NewSMSGateway(apiKey, baseURL, sender string, perSecond float64) *SMSGateway {
	if baseURL == "" {
		baseURL = defaultSMSBaseURL
	}
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &SMSGateway{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultSMSTimeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "sms-gateway",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Send delivers msg.Code to msg.Destination. Destination should be digits only (country code + number).
func (g *SMSGateway) Send(ctx context.Context, msg OneTimeCode) error {
	if g.APIKey == "" {
		return ErrSMSNotConfigured
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "sms: throttled")
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.post(ctx, msg.Destination, msg.Code)
	})
	return err
}

// State reports the circuit breaker state.
func (g *SMSGateway) State() gobreaker.State { return g.breaker.State() }

func (g *SMSGateway) post(ctx context.Context, phone, code string) error {
	body := map[string]interface{}{
		"route":     "otp",
		"numbers":   phone,
		"variables": code,
	}
	if g.Sender != "" {
		body["sender_id"] = g.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "sms: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", g.APIKey)
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "sms: request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
