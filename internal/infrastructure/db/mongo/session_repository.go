package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zaphost/gateway/internal/core/domain"
)

const collectionSessions = "whatsapp_sessions"

// SnapshotRepository mirrors session status changes into whatsapp_sessions,
// one document per user.
type SnapshotRepository struct {
	col *mongo.Collection
}

func NewSnapshotRepository(db *mongo.Database) *SnapshotRepository {
	return &SnapshotRepository{col: db.Collection(collectionSessions)}
}

// Save upserts the user's document. Connected snapshots stamp connectedAt;
// disconnected ones stamp disconnectedAt and the reason.
func (r *SnapshotRepository) Save(ctx context.Context, snap domain.SessionSnapshot) error {
	uid, err := objectID(snap.UserID, domain.ErrUserNotFound)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	set := bson.M{
		"status":    string(snap.Status),
		"updatedAt": updatedAt.UTC(),
	}

	switch snap.Status {
	case domain.SessionConnected:
		if snap.ConnectedAt != nil {
			set["connectedAt"] = snap.ConnectedAt.UTC()
		}
	case domain.SessionDisconnected:
		set["disconnectedAt"] = updatedAt.UTC()
		if snap.Reason != "" {
			set["disconnectReason"] = snap.Reason
		}
	case domain.SessionError:
		set["errorReason"] = snap.Reason
	}

	_, err = r.col.UpdateOne(ctx,
		bson.M{"userId": uid},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

// EnsureIndexes creates the one-document-per-user index.
func (r *SnapshotRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
