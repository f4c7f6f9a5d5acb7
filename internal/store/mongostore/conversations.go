package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/zhouzirui/streamchat/backend/internal/model/chat"
)

// ConversationStore implements chat.Store on a MongoDB collection. Each
// conversation is a single document; appends are $push updates so they
// never read the existing message list.
type ConversationStore struct {
	coll *mongo.Collection
}

// NewConversationStore returns a ConversationStore using the given collection.
func NewConversationStore(coll *mongo.Collection) *ConversationStore {
	return &ConversationStore{coll: coll}
}

type conversationDoc struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	UserID    string         `bson:"userId"`
	Title     string         `bson:"title"`
	Messages  []chat.Message `bson:"messages"`
	CreatedAt time.Time      `bson:"createdAt"`
	UpdatedAt time.Time      `bson:"updatedAt"`
}

func (d conversationDoc) toModel() chat.Conversation {
	return chat.Conversation{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Title:     d.Title,
		Messages:  d.Messages,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Create inserts an empty conversation owned by userID.
func (s *ConversationStore) Create(ctx context.Context, userID, title string) (chat.Conversation, error) {
	now := time.Now().UTC()
	doc := conversationDoc{
		UserID:    userID,
		Title:     title,
		Messages:  []chat.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return chat.Conversation{}, err
	}

	doc.ID = result.InsertedID.(bson.ObjectID)
	return doc.toModel(), nil
}

// Get fetches a conversation scoped to its claimed owner. A conversation
// owned by someone else reports chat.ErrNotFound, never the document.
func (s *ConversationStore) Get(ctx context.Context, conversationID, userID string) (chat.Conversation, error) {
	oid, err := bson.ObjectIDFromHex(conversationID)
	if err != nil {
		return chat.Conversation{}, chat.ErrNotFound
	}

	var doc conversationDoc
	err = s.coll.FindOne(ctx, bson.M{"_id": oid, "userId": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.Conversation{}, chat.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	return doc.toModel(), nil
}

// AppendMessage pushes one message onto the conversation and bumps
// updatedAt in the same atomic update.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	oid, err := bson.ObjectIDFromHex(conversationID)
	if err != nil {
		return chat.ErrNotFound
	}

	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC()

	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"updatedAt": msg.Timestamp},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// ListForUser returns summaries ordered by last-modified descending,
// capped at limit. The messages array is never loaded.
func (s *ConversationStore) ListForUser(ctx context.Context, userID string, limit int64) ([]chat.Summary, error) {
	opts := options.Find().
		SetProjection(bson.M{"title": 1, "updatedAt": 1}).
		SetSort(bson.M{"updatedAt": -1}).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	summaries := make([]chat.Summary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, chat.Summary{
			ID:        doc.ID.Hex(),
			Title:     doc.Title,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return summaries, nil
}

// Delete removes a conversation if it is owned by userID.
func (s *ConversationStore) Delete(ctx context.Context, conversationID, userID string) error {
	oid, err := bson.ObjectIDFromHex(conversationID)
	if err != nil {
		return chat.ErrNotFound
	}

	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// CountUserMessages counts user-role messages across all of a user's
// conversations via an unwind/count aggregation.
func (s *ConversationStore) CountUserMessages(ctx context.Context, userID string) (int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "userId", Value: userID}}}},
		bson.D{{Key: "$unwind", Value: "$messages"}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "messages.role", Value: string(chat.RoleUser)}}}},
		bson.D{{Key: "$count", Value: "count"}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Count int32 `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, err
	}

	if len(results) == 0 {
		return 0, nil
	}
	return int(results[0].Count), nil
}
