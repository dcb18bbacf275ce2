package notification

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

type fakeSender struct {
	messages []*messaging.MulticastMessage
}

func (s *fakeSender) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	s.messages = append(s.messages, m)
	resp := &messaging.BatchResponse{SuccessCount: len(m.Tokens)}
	for range m.Tokens {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true})
	}
	return resp, nil
}

func TestFCMPusher_SendsToDeviceTokens(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	users := repositories.NewStoreUserRepository(store)
	require.NoError(t, users.CreateUser(ctx, &models.User{UID: "bob", Name: "Bob"}))
	require.NoError(t, users.AddDeviceToken(ctx, "bob", "device-1"))

	sender := &fakeSender{}
	p := NewFCMPusher(sender, users, logging.Discard())
	err := p.Push(ctx, "bob", models.Notification{Key: "k", ActorName: "Alice", Kind: models.NotificationLike, PostID: "p1"})
	require.NoError(t, err)

	require.Len(t, sender.messages, 1)
	m := sender.messages[0]
	assert.Equal(t, []string{"device-1"}, m.Tokens)
	assert.Equal(t, "Alice liked your post", m.Notification.Body)
	assert.Equal(t, "p1", m.Data["postId"])
}

func TestFCMPusher_NoTokensNoSend(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	users := repositories.NewStoreUserRepository(store)
	require.NoError(t, users.CreateUser(ctx, &models.User{UID: "bob"}))

	sender := &fakeSender{}
	require.NoError(t, NewFCMPusher(sender, users, logging.Discard()).Push(ctx, "bob", models.Notification{}))
	assert.Empty(t, sender.messages)
}
