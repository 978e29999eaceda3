package notifications

import (
	"context"

	"campusdesk_go/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM accepts at most 500 tokens per multicast.
const fcmBatchSize = 500

type fcmClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider sends through Firebase Cloud Messaging.
type FCMProvider struct {
	client fcmClient
}

func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FCMProvider{client: client}, nil
}

func fcmData(msg Message) map[string]string {
	data := map[string]string{}
	for k, v := range msg.Data {
		data[k] = v
	}
	if msg.URL != "" {
		data["url"] = msg.URL
	}
	return data
}

// Send uses a single send for one token and multicast batches otherwise.
func (p *FCMProvider) Send(ctx context.Context, tokens []models.PushToken, msg Message) (Result, error) {
	notification := &messaging.Notification{Title: msg.Title, Body: msg.Body}
	data := fcmData(msg)

	if len(tokens) == 1 {
		if _, err := p.client.Send(ctx, &messaging.Message{
			Token:        tokens[0].Token,
			Notification: notification,
			Data:         data,
		}); err != nil {
			return Result{}, err
		}
		return Result{SuccessCount: 1}, nil
	}

	var res Result
	for start := 0; start < len(tokens); start += fcmBatchSize {
		end := start + fcmBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := make([]string, 0, end-start)
		for _, t := range tokens[start:end] {
			batch = append(batch, t.Token)
		}

		br, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: notification,
			Data:         data,
		})
		if err != nil {
			res.FailureCount += len(batch)
			continue
		}
		res.SuccessCount += br.SuccessCount
		res.FailureCount += br.FailureCount
	}
	return res, nil
}
