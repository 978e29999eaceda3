package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"campusdesk_go/models"

	"firebase.google.com/go/v4/messaging"
	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFCM struct {
	single     []*messaging.Message
	multicasts []*messaging.MulticastMessage
	failBatch  int
}

func (f *fakeFCM) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.single = append(f.single, m)
	return "id", nil
}

func (f *fakeFCM) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.multicasts = append(f.multicasts, m)
	if len(f.multicasts) == f.failBatch {
		return nil, errors.New("quota")
	}
	return &messaging.BatchResponse{SuccessCount: len(m.Tokens) - 1, FailureCount: 1}, nil
}

func manyTokens(n int) []models.PushToken {
	out := make([]models.PushToken, n)
	for i := range out {
		out[i] = models.PushToken{Enrollment: fmt.Sprintf("E%d", i), Token: fmt.Sprintf("t%d", i)}
	}
	return out
}

func TestFCMSingleTokenUsesSend(t *testing.T) {
	client := &fakeFCM{}
	p := &FCMProvider{client: client}

	res, err := p.Send(context.Background(), manyTokens(1), Message{Title: "a", Body: "b", URL: "/fine.html"})

	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 1}, res)
	require.Len(t, client.single, 1)
	assert.Equal(t, "/fine.html", client.single[0].Data["url"])
	assert.Empty(t, client.multicasts)
}

func TestFCMMulticastBatches(t *testing.T) {
	client := &fakeFCM{failBatch: 3}
	p := &FCMProvider{client: client}

	res, err := p.Send(context.Background(), manyTokens(1100), Message{Title: "a"})

	require.NoError(t, err)
	require.Len(t, client.multicasts, 3)
	assert.Len(t, client.multicasts[0].Tokens, 500)
	assert.Len(t, client.multicasts[2].Tokens, 100)
	assert.Equal(t, Result{SuccessCount: 998, FailureCount: 102}, res)
}

func TestWebPushCountsStatusCodes(t *testing.T) {
	statuses := []int{201, 410}
	p := NewWebPushProvider("pub", "priv", "mailto:admin@example.com")
	p.send = func(_ context.Context, _ []byte, _ *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
		code := statuses[0]
		statuses = statuses[1:]
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	sub := `{"endpoint":"https://push.example.com/x","keys":{"p256dh":"k","auth":"a"}}`

	res, err := p.Send(context.Background(), []models.PushToken{
		{Token: sub, Kind: models.TokenKindWebPush},
		{Token: sub, Kind: models.TokenKindWebPush},
		{Token: "not json", Kind: models.TokenKindWebPush},
	}, Message{Title: "t"})

	require.NoError(t, err)
	assert.Equal(t, Result{SuccessCount: 1, FailureCount: 2}, res)
}
