package repository

import (
	"context"
	"fmt"
	"time"

	"carpool/pkg/config"
	"carpool/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "ChatMessages"
)

type mongoMessageRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
}

type MessageRepository interface {
	Insert(ctx context.Context, message *model.ChatMessage) error
	FindConversation(ctx context.Context, rideID string, userA string, userB string, limit int) ([]*model.ChatMessage, error)
	Threads(ctx context.Context, userID string) ([]*model.ChatThread, error)
}

func NewMongoMessageRepository(cfg *config.Config) MessageRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoMessageRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoMessageRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoMessageRepository) Insert(ctx context.Context, message *model.ChatMessage) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	message.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		message.ID = oid.Hex()
	}
	return nil
}

// FindConversation returns the newest messages between the pair about the
// ride, oldest first.
func (r *mongoMessageRepository) FindConversation(ctx context.Context, rideID string, userA string, userB string, limit int) ([]*model.ChatMessage, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"ride_id": rideID,
		"$or": []bson.M{
			{"sender_id": userA, "receiver_id": userB},
			{"sender_id": userB, "receiver_id": userA},
		},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*model.ChatMessage
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Threads folds the user's messages into one entry per (ride, other user)
// pair, newest conversation first.
func (r *mongoMessageRepository) Threads(ctx context.Context, userID string) ([]*model.ChatThread, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": []bson.M{
				{"sender_id": userID},
				{"receiver_id": userID},
			},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$addFields", Value: bson.M{
			"other_user_id": bson.M{
				"$cond": bson.M{
					"if":   bson.M{"$eq": []any{"$sender_id", userID}},
					"then": "$receiver_id",
					"else": "$sender_id",
				},
			},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"ride_id":       "$ride_id",
				"other_user_id": "$other_user_id",
			},
			"last_message": bson.M{"$first": "$body"},
			"updated_at":   bson.M{"$first": "$created_at"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":           0,
			"ride_id":       "$_id.ride_id",
			"other_user_id": "$_id.other_user_id",
			"last_message":  1,
			"updated_at":    1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "updated_at", Value: -1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate threads: %w", err)
	}
	defer cursor.Close(ctx)

	var threads []*model.ChatThread
	if err = cursor.All(ctx, &threads); err != nil {
		return nil, fmt.Errorf("failed to decode threads: %w", err)
	}

	return threads, nil
}
