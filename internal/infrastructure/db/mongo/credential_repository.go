package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zaphost/gateway/internal/core/domain"
)

// credentialSchema describes where one credential family lives. The two
// collections predate the shared model and name the key field differently.
type credentialSchema struct {
	collection string
	keyField   string
}

var credentialSchemas = map[domain.CredentialKind]credentialSchema{
	domain.KindAPIKey:  {collection: "apikeys", keyField: "key"},
	domain.KindProject: {collection: "projects", keyField: "apiKey"},
}

// CredentialRepository implements ports.CredentialRepository over the apikeys
// and projects collections.
type CredentialRepository struct {
	db *mongo.Database
}

func NewCredentialRepository(db *mongo.Database) *CredentialRepository {
	return &CredentialRepository{db: db}
}

type credentialDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      primitive.ObjectID `bson:"userId"`
	Name        string             `bson:"name"`
	Key         string             `bson:"key,omitempty"`
	APIKey      string             `bson:"apiKey,omitempty"`
	SecretToken string             `bson:"secretToken,omitempty"`
	IsActive    bool               `bson:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt"`
	LastUsed    *time.Time         `bson:"lastUsed,omitempty"`
}

func (d *credentialDoc) toDomain(kind domain.CredentialKind) *domain.Credential {
	c := &domain.Credential{
		ID:         d.ID.Hex(),
		UserID:     d.UserID.Hex(),
		Kind:       kind,
		Name:       d.Name,
		Key:        d.Key,
		SecretHash: d.SecretToken,
		IsActive:   d.IsActive,
		CreatedAt:  d.CreatedAt,
		LastUsed:   d.LastUsed,
	}
	if kind == domain.KindProject {
		c.Key = d.APIKey
	}
	return c
}

func (r *CredentialRepository) collection(kind domain.CredentialKind) (*mongo.Collection, credentialSchema, error) {
	schema, ok := credentialSchemas[kind]
	if !ok {
		return nil, credentialSchema{}, fmt.Errorf("unknown credential kind %q", kind)
	}
	return r.db.Collection(schema.collection), schema, nil
}

func (r *CredentialRepository) Create(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	col, _, err := r.collection(cred.Kind)
	if err != nil {
		return nil, err
	}
	userID, err := objectID(cred.UserID, domain.ErrUserNotFound)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := credentialDoc{
		UserID:      userID,
		Name:        cred.Name,
		SecretToken: cred.SecretHash,
		IsActive:    cred.IsActive,
		CreatedAt:   cred.CreatedAt.UTC(),
	}
	if cred.Kind == domain.KindProject {
		doc.APIKey = cred.Key
	} else {
		doc.Key = cred.Key
	}

	res, err := col.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", cred.Kind, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.toDomain(cred.Kind), nil
}

func (r *CredentialRepository) FindActiveByKey(ctx context.Context, kind domain.CredentialKind, key string) (*domain.Credential, error) {
	col, schema, err := r.collection(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc credentialDoc
	err = col.FindOne(ctx, bson.M{schema.keyField: key, "isActive": true}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}
	return doc.toDomain(kind), nil
}

func (r *CredentialRepository) CountActive(ctx context.Context, kind domain.CredentialKind, userID string) (int64, error) {
	col, _, err := r.collection(kind)
	if err != nil {
		return 0, err
	}
	uid, err := objectID(userID, domain.ErrUserNotFound)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := col.CountDocuments(ctx, bson.M{"userId": uid, "isActive": true})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// ListActive returns the user's active credentials newest first. Secret
// hashes are excluded by projection.
func (r *CredentialRepository) ListActive(ctx context.Context, kind domain.CredentialKind, userID string) ([]*domain.Credential, error) {
	col, _, err := r.collection(kind)
	if err != nil {
		return nil, err
	}
	uid, err := objectID(userID, domain.ErrUserNotFound)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"secretToken": 0}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cur, err := col.Find(ctx, bson.M{"userId": uid, "isActive": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer cur.Close(ctx)

	var docs []credentialDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	out := make([]*domain.Credential, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain(kind))
	}
	return out, nil
}

// Deactivate soft-deletes a credential owned by userID.
func (r *CredentialRepository) Deactivate(ctx context.Context, kind domain.CredentialKind, id, userID string) error {
	col, _, err := r.collection(kind)
	if err != nil {
		return err
	}
	oid, err := objectID(id, domain.ErrCredentialNotFound)
	if err != nil {
		return err
	}
	uid, err := objectID(userID, domain.ErrCredentialNotFound)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": oid, "userId": uid, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "deletedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", kind, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func (r *CredentialRepository) TouchLastUsed(ctx context.Context, kind domain.CredentialKind, id string, at time.Time) error {
	col, _, err := r.collection(kind)
	if err != nil {
		return err
	}
	oid, err := objectID(id, domain.ErrCredentialNotFound)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"lastUsed": at.UTC()}})
	return err
}

// EnsureIndexes creates the unique key index and the owner lookup index on
// both credential collections.
func (r *CredentialRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	for kind, schema := range credentialSchemas {
		indexes := []mongo.IndexModel{
			{Keys: bson.D{{Key: schema.keyField, Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}}},
		}
		if _, err := r.db.Collection(schema.collection).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("%s indexes: %w", kind, err)
		}
	}
	return nil
}
