// Package notification implements both ends of the notification log: the
// fire-and-forget writer used by mutations, and the per-user inbox that turns
// appended entries into at-most-once alerts plus an unseen badge.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// writeTimeout bounds one detached append.
const writeTimeout = 10 * time.Second

// Pusher delivers a device push for an entry that was already appended.
type Pusher interface {
	Push(ctx context.Context, recipientUID string, n models.Notification) error
}

// Notifier appends notification entries in the background. A failed append
// is logged and never reported to the caller.
type Notifier struct {
	repo   repositories.NotificationRepository
	pusher Pusher
	log    logging.Logger

	wg sync.WaitGroup
}

// NewNotifier creates a Notifier. pusher may be nil.
func NewNotifier(repo repositories.NotificationRepository, pusher Pusher, log logging.Logger) *Notifier {
	return &Notifier{repo: repo, pusher: pusher, log: log}
}

// Notify appends {actorName, kind, postID} to the recipient's log without
// blocking the caller.
func (n *Notifier) Notify(recipientUID, actorName string, kind models.NotificationKind, postID string) {
	entry := models.Notification{
		ActorName: actorName,
		Kind:      kind,
		PostID:    postID,
		CreatedAt: time.Now().UTC(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		key, err := n.repo.Append(ctx, recipientUID, entry)
		if err != nil {
			n.log.Warn(ctx, "notification write failed",
				"recipient", recipientUID, "kind", string(kind), "post", postID, "error", err)
			return
		}
		n.log.Debug(ctx, "notification appended", "recipient", recipientUID, "key", key)

		if n.pusher == nil {
			return
		}
		entry.Key = key
		if err := n.pusher.Push(ctx, recipientUID, entry); err != nil {
			n.log.Warn(ctx, "push delivery failed", "recipient", recipientUID, "error", err)
		}
	}()
}

// Close waits for in-flight appends.
func (n *Notifier) Close() {
	n.wg.Wait()
}
