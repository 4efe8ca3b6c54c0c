package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/zaphost/gateway/internal/core/domain"
)

const collectionTransactions = "transactions"

// TransactionRepository settles payment transactions created by the checkout
// flow.
type TransactionRepository struct {
	col *mongo.Collection
}

func NewTransactionRepository(db *mongo.Database) *TransactionRepository {
	return &TransactionRepository{col: db.Collection(collectionTransactions)}
}

func (r *TransactionRepository) Complete(ctx context.Context, id string, at time.Time) error {
	return r.settle(ctx, id, bson.M{"status": "completed", "completedAt": at.UTC()})
}

func (r *TransactionRepository) Fail(ctx context.Context, id string, at time.Time) error {
	return r.settle(ctx, id, bson.M{"status": "failed", "failedAt": at.UTC()})
}

func (r *TransactionRepository) settle(ctx context.Context, id string, set bson.M) error {
	oid, err := objectID(id, domain.ErrTransactionMissing)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTransactionMissing
	}
	return nil
}
