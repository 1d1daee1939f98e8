package realtime

import (
	"context"

	"cloud.google.com/go/firestore"

	"tradepost/pkg/logger"
)

// firestoreSubscriber adapts Firestore snapshot listeners to the
// Subscriber contract. Every snapshot, including the initial one, fires
// onChange; consumers re-fetch rather than reading deltas, so the signal
// stays content-free.
type firestoreSubscriber struct {
	client *firestore.Client
}

func NewFirestoreSubscriber(client *firestore.Client) Subscriber {
	return &firestoreSubscriber{
		client: client,
	}
}

func (s *firestoreSubscriber) Subscribe(ctx context.Context, conversationID string, onChange func()) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	snapshots := s.client.Collection("conversations").
		Doc(conversationID).
		Collection("messages").
		Snapshots(ctx)

	go func() {
		defer snapshots.Stop()
		for {
			_, err := snapshots.Next()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("realtime: snapshot stream for conversation %s ended: %v", conversationID, err)
				}
				return
			}
			onChange()
		}
	}()

	return cancel, nil
}
