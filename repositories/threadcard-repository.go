package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskbot-project/taskbot-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ThreadCardRepository struct {
	cardsCollection *mongo.Collection
}

func NewThreadCardRepository(db *mongo.Database) *ThreadCardRepository {
	return &ThreadCardRepository{cardsCollection: db.Collection("thread_cards")}
}

func (r *ThreadCardRepository) EnsureIndexes(ctx context.Context) error {
	key := mongo.IndexModel{
		Keys: bson.D{
			{Key: "teamId", Value: 1},
			{Key: "channelId", Value: 1},
			{Key: "sourceMessageTs", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.cardsCollection.Indexes().CreateOne(ctx, key); err != nil {
		return fmt.Errorf("failed to create thread_cards index: %v", err)
	}
	return nil
}

// GetCard returns the card pointer for an originating message, or nil if
// no card has been posted for it yet.
func (r *ThreadCardRepository) GetCard(ctx context.Context, teamID, channelID, sourceMessageTS string) (*models.ThreadCard, error) {
	filter := bson.M{"teamId": teamID, "channelId": channelID, "sourceMessageTs": sourceMessageTS}

	var card models.ThreadCard
	err := r.cardsCollection.FindOne(ctx, filter).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch thread card: %v", err)
	}
	return &card, nil
}

// SaveCard records the posted card message for an originating message.
// The row is upserted on the key, never duplicated.
func (r *ThreadCardRepository) SaveCard(ctx context.Context, teamID, channelID, sourceMessageTS, cardMessageTS string) error {
	filter := bson.M{"teamId": teamID, "channelId": channelID, "sourceMessageTs": sourceMessageTS}
	update := bson.M{"$set": bson.M{
		"cardMessageTs": cardMessageTS,
		"updatedAt":     time.Now(),
	}}

	_, err := r.cardsCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save thread card: %v", err)
	}
	return nil
}
