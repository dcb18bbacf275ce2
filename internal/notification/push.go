package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// MulticastSender is the part of *messaging.Client the pusher uses.
type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMPusher sends a device push to every registered token of the recipient
// and forgets tokens the messaging service reports as unregistered.
type FCMPusher struct {
	sender MulticastSender
	users  repositories.UserRepository
	log    logging.Logger
}

func NewFCMPusher(sender MulticastSender, users repositories.UserRepository, log logging.Logger) *FCMPusher {
	return &FCMPusher{sender: sender, users: users, log: log}
}

func (p *FCMPusher) Push(ctx context.Context, recipientUID string, n models.Notification) error {
	user, err := p.users.GetUserByUID(ctx, recipientUID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if len(user.DeviceTokens) == 0 {
		return nil
	}

	resp, err := p.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: "New activity",
			Body:  n.Message(),
		},
		Data: map[string]string{
			"key":    n.Key,
			"kind":   string(n.Kind),
			"postId": n.PostID,
		},
		Tokens: user.DeviceTokens,
	})
	if err != nil {
		return err
	}

	p.log.Debug(ctx, "push sent", "success", resp.SuccessCount, "failure", resp.FailureCount)
	for i, r := range resp.Responses {
		if r.Success || !messaging.IsUnregistered(r.Error) {
			continue
		}
		token := user.DeviceTokens[i]
		if err := p.users.RemoveDeviceToken(ctx, recipientUID, token); err != nil {
			p.log.Warn(ctx, "could not drop dead device token", "uid", recipientUID, "error", err)
		}
	}
	return nil
}
