package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ThreadCard maps one originating message to the single card message
// posted for it. There is at most one row per
// (teamId, channelId, sourceMessageTs) and the row is updated in place
// on every refresh, never re-created.
type ThreadCard struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TeamID          string             `json:"teamId" bson:"teamId"`
	ChannelID       string             `json:"channelId" bson:"channelId"`
	SourceMessageTS string             `json:"sourceMessageTs" bson:"sourceMessageTs"`
	CardMessageTS   string             `json:"cardMessageTs" bson:"cardMessageTs"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}
