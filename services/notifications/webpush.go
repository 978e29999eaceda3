package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"campusdesk_go/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type webPushSendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// WebPushProvider sends to browser subscriptions with VAPID keys.
// The token of a webpush PushToken is the subscription JSON.
type WebPushProvider struct {
	publicKey  string
	privateKey string
	subject    string
	send       webPushSendFunc
}

func NewWebPushProvider(publicKey, privateKey, subject string) *WebPushProvider {
	return &WebPushProvider{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		send:       webpush.SendNotificationWithContext,
	}
}

func (p *WebPushProvider) Send(ctx context.Context, tokens []models.PushToken, msg Message) (Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"title": msg.Title,
		"body":  msg.Body,
		"url":   msg.URL,
		"data":  msg.Data,
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, t := range tokens {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(t.Token), &sub); err != nil || sub.Endpoint == "" {
			res.FailureCount++
			continue
		}
		resp, err := p.send(ctx, payload, &sub, &webpush.Options{
			Subscriber:      p.subject,
			VAPIDPublicKey:  p.publicKey,
			VAPIDPrivateKey: p.privateKey,
			TTL:             3600,
		})
		if err != nil {
			res.FailureCount++
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			res.SuccessCount++
		} else {
			res.FailureCount++
		}
	}
	return res, nil
}
