package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/connectpay/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedEmail struct {
	to      []string
	subject string
	body    string
}

type fakeEmailProvider struct {
	mu      sync.Mutex
	sent    []capturedEmail
	sendErr error
}

func (f *fakeEmailProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, capturedEmail{to: to, subject: subject, body: htmlBody})
	return nil
}

func (f *fakeEmailProvider) deliveries() []capturedEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedEmail, len(f.sent))
	copy(out, f.sent)
	return out
}

func newDispatcher(provider *fakeEmailProvider) *notification.Dispatcher {
	return notification.NewDispatcher(notification.Params{
		Log:   zap.NewNop(),
		Email: provider,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherDeliversPayoutNotification(t *testing.T) {
	provider := &fakeEmailProvider{}
	d := newDispatcher(provider)
	d.Start()
	defer d.Stop()

	d.Enqueue(notification.Notification{
		Kind:             notification.KindPayoutSucceeded,
		Recipient:        "payee@example.com",
		OrganizationName: "Test Org",
		Amount:           98.50,
		Currency:         "usd",
	})

	waitFor(t, func() bool { return len(provider.deliveries()) == 1 })

	sent := provider.deliveries()[0]
	assert.Equal(t, []string{"payee@example.com"}, sent.to)
	assert.Contains(t, sent.subject, "instant payout")
	assert.Contains(t, sent.body, "98.50")
	assert.Contains(t, sent.body, "Test Org")
}

func TestDispatcherSkipsEmptyRecipient(t *testing.T) {
	provider := &fakeEmailProvider{}
	d := newDispatcher(provider)
	d.Start()

	d.Enqueue(notification.Notification{
		Kind:             notification.KindAccountActivated,
		OrganizationName: "No Email Org",
	})
	d.Enqueue(notification.Notification{
		Kind:             notification.KindAccountActivated,
		Recipient:        "owner@example.com",
		OrganizationName: "With Email Org",
	})

	// Stop drains the queue before returning, so both notifications have
	// been handled once it comes back.
	d.Stop()

	sent := provider.deliveries()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"owner@example.com"}, sent[0].to)
	assert.Contains(t, sent[0].body, "With Email Org")
}

func TestDispatcherSwallowsDeliveryFailures(t *testing.T) {
	provider := &fakeEmailProvider{sendErr: errors.New("smtp unavailable")}
	d := newDispatcher(provider)
	d.Start()

	// Enqueue never blocks or fails even when the provider is down.
	d.Enqueue(notification.Notification{
		Kind:      notification.KindPayoutSucceeded,
		Recipient: "payee@example.com",
	})
	d.Stop()

	assert.Empty(t, provider.deliveries())
}

func TestEnqueueWithoutWorkerDoesNotBlock(t *testing.T) {
	provider := &fakeEmailProvider{}
	d := newDispatcher(provider)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.Enqueue(notification.Notification{Kind: notification.KindPayoutSucceeded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked with no worker running")
	}
}
