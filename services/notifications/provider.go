package notifications

import (
	"context"
	"strings"

	"campusdesk_go/config"
	"campusdesk_go/models"

	"github.com/sirupsen/logrus"
)

// Provider delivers one message to a set of tokens.
type Provider interface {
	Send(ctx context.Context, tokens []models.PushToken, msg Message) (Result, error)
}

// MultiProvider routes each token to the provider registered for its kind.
// Tokens of an unregistered kind count as failures.
type MultiProvider struct {
	byKind map[string]Provider
}

func NewMultiProvider() *MultiProvider {
	return &MultiProvider{byKind: map[string]Provider{}}
}

// Register sets the provider for a token kind.
func (m *MultiProvider) Register(kind string, p Provider) *MultiProvider {
	m.byKind[kind] = p
	return m
}

func (m *MultiProvider) Send(ctx context.Context, tokens []models.PushToken, msg Message) (Result, error) {
	groups := map[string][]models.PushToken{}
	for _, t := range tokens {
		kind := strings.ToLower(t.Kind)
		if kind == "" {
			kind = models.TokenKindFCM
		}
		groups[kind] = append(groups[kind], t)
	}

	var total Result
	for kind, group := range groups {
		p, ok := m.byKind[kind]
		if !ok {
			total.FailureCount += len(group)
			continue
		}
		r, err := p.Send(ctx, group, msg)
		if err != nil {
			logrus.WithError(err).WithField("kind", kind).Warn("push provider failed")
			r = Result{FailureCount: len(group)}
		}
		total = total.Add(r)
	}
	return total, nil
}

// LogProvider only logs. It stands in when no push credentials are configured.
type LogProvider struct{}

func (LogProvider) Send(_ context.Context, tokens []models.PushToken, msg Message) (Result, error) {
	logrus.WithFields(logrus.Fields{
		"title":  msg.Title,
		"tokens": len(tokens),
	}).Info("push delivery skipped: no provider configured")
	return Result{SuccessCount: len(tokens)}, nil
}

// NewProviderFromConfig wires FCM and Web Push when their credentials are present.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config) Provider {
	multi := NewMultiProvider()
	configured := false

	if cfg.FirebaseCredentialsFile != "" {
		fcm, err := NewFCMProvider(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logrus.WithError(err).Error("FCM disabled: cannot initialise firebase")
		} else {
			multi.Register(models.TokenKindFCM, fcm)
			configured = true
		}
	}
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		multi.Register(models.TokenKindWebPush, NewWebPushProvider(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject))
		configured = true
	}

	if !configured {
		logrus.Warn("no push provider configured; notifications are logged only")
		return LogProvider{}
	}
	return multi
}
