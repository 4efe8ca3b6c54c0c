package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/zaphost/gateway/internal/core/domain"
)

const (
	collectionMessageLogs = "message_logs"
	collectionAPILogs     = "api_logs"
)

// AuditRepository implements ports.AuditRepository. It is written to by the
// audit dispatcher only, never on the request path.
type AuditRepository struct {
	db *mongo.Database
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) InsertMessageLog(ctx context.Context, entry domain.MessageLog) error {
	uid, err := objectID(entry.UserID, domain.ErrUserNotFound)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"userId":    uid,
		"to":        entry.To,
		"message":   entry.Body,
		"messageId": entry.MessageID,
		"status":    entry.Status,
		"sentAt":    entry.SentAt.UTC(),
	}
	if _, err := r.db.Collection(collectionMessageLogs).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}
	return nil
}

func (r *AuditRepository) InsertAPILog(ctx context.Context, entry domain.APILog) error {
	uid, err := objectID(entry.UserID, domain.ErrUserNotFound)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"userId":    uid,
		"endpoint":  entry.Endpoint,
		"method":    entry.Method,
		"params":    entry.Params,
		"status":    entry.Status,
		"timestamp": entry.Timestamp.UTC(),
	}
	if oid, err := primitive.ObjectIDFromHex(entry.CredentialID); err == nil {
		doc["apiKeyId"] = oid
	}
	if _, err := r.db.Collection(collectionAPILogs).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	return nil
}

// EnsureIndexes supports per-user history queries on both log collections.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	if _, err := r.db.Collection(collectionMessageLogs).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "sentAt", Value: -1}},
	}); err != nil {
		return err
	}
	_, err := r.db.Collection(collectionAPILogs).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}
