package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/domain/entities"
	"github.com/sastrawinata/wicara/domain/repositories"
)

// SessionRepository implements repositories.SessionRepository using MongoDB.
// It is the durable alternative to the default in-memory store.
type SessionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewSessionRepository creates a MongoDB-backed session repository.
func NewSessionRepository(db *mongo.Database, logger *zap.Logger) repositories.SessionRepository {
	collection := db.Collection("sessions")

	// Indexes support per-user lookups and the idle-expiry sweep.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "last_accessed_at", Value: 1},
			}},
		})
		if err != nil {
			logger.Error("Failed to create session indexes", zap.Error(err))
		}
	}()

	return &SessionRepository{
		collection: collection,
		logger:     logger,
	}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *entities.ConversationSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		r.logger.Error("Failed to create session", zap.Error(err))
		return err
	}
	return nil
}

// GetByID retrieves a session by its id.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.ConversationSession, error) {
	var session entities.ConversationSession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Update replaces the stored session document.
func (r *SessionRepository) Update(ctx context.Context, session *entities.ConversationSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// ExpireIdle transitions active sessions idle past maxIdle to expired.
func (r *SessionRepository) ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle)
	now := time.Now()

	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"status":           entities.SessionStatusActive,
			"last_accessed_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":   entities.SessionStatusExpired,
			"ended_at": now,
		}},
	)
	if err != nil {
		return 0, err
	}
	if result.ModifiedCount > 0 {
		r.logger.Info("Expired idle sessions", zap.Int64("count", result.ModifiedCount))
	}
	return int(result.ModifiedCount), nil
}
