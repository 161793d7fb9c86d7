package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// DefaultTTL is how long the push service keeps an undelivered message.
const DefaultTTL = 3600

// Sender delivers a payload to every device of a technician.
type Sender interface {
	SendToTechnician(ctx context.Context, technicianID uuid.UUID, p Payload) (int, error)
}

// VAPID holds the application server keys.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// WebPushSender sends through the Web Push protocol.
type WebPushSender struct {
	store  store.Store
	vapid  VAPID
	client webpush.HTTPClient
	ttl    int
	logger *slog.Logger
}

// SenderOption configures a WebPushSender.
type SenderOption func(*WebPushSender)

// WithHTTPClient overrides the client used to reach push services.
func WithHTTPClient(c webpush.HTTPClient) SenderOption {
	return func(s *WebPushSender) { s.client = c }
}

func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *WebPushSender) { s.logger = l }
}

func NewWebPushSender(st store.Store, vapid VAPID, opts ...SenderOption) *WebPushSender {
	s := &WebPushSender{
		store:  st,
		vapid:  vapid,
		client: http.DefaultClient,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendToTechnician pushes p to each subscription of technicianID and
// returns how many deliveries the push services accepted. Subscriptions
// reported gone (404 or 410) are removed. One failed endpoint does not stop
// delivery to the others; their errors are joined.
func (s *WebPushSender) SendToTechnician(ctx context.Context, technicianID uuid.UUID, p Payload) (int, error) {
	subs, err := s.store.ListPushSubscriptions(ctx, technicianID)
	if err != nil {
		return 0, fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	msg, err := json.Marshal(p.WithDefaults())
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	var errs []error
	sent := 0
	for _, sub := range subs {
		if err := s.send(ctx, msg, sub); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *WebPushSender) send(ctx context.Context, msg []byte, sub *models.PushSubscription) error {
	resp, err := webpush.SendNotificationWithContext(ctx, msg, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.vapid.Subject,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		s.logger.Warn("push failed", "technician_id", sub.TechnicianID, "endpoint", sub.Endpoint, "error", err)
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		s.logger.Info("push subscription expired, removing", "technician_id", sub.TechnicianID, "endpoint", sub.Endpoint)
		if err := s.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete expired subscription: %w", err)
		}
		return fmt.Errorf("push to %s: subscription gone (%d)", sub.Endpoint, resp.StatusCode)
	case resp.StatusCode >= 300:
		s.logger.Warn("push rejected", "technician_id", sub.TechnicianID, "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return fmt.Errorf("push to %s: status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
