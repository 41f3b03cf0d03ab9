// ABOUTME: MongoDB implementation of the message Store interface
// ABOUTME: Uses pipeline updates so receipt writes are atomic and first-instant-wins

package msgstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "messages"

// MongoStore implements the Store interface backed by a MongoDB collection
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

// Ensure MongoStore implements the Store interface
var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to the document store and ensures the required
// indexes exist: a compound index on (conversationId, timestamp) and a text
// index on content.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	logger := slog.Default().With("component", "msgstore")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to message store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging message store: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
		logger: logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("message store initialized", "database", database)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "content", Value: "text"}}},
	})
	return err
}

// Append persists a message, assigning an opaque id if unset.
func (s *MongoStore) Append(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.DeliveredTo == nil {
		msg.DeliveredTo = map[string]time.Time{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = map[string]time.Time{}
	}

	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "conversation", msg.ConversationID)
	return nil
}

// Get retrieves a message by id.
// Returns ErrNotFound if the message doesn't exist.
func (s *MongoStore) Get(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return &msg, nil
}

// ListByConversation returns messages strictly after since, oldest first.
func (s *MongoStore) ListByConversation(ctx context.Context, conversationID string, since time.Time, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}

	filter := bson.M{"conversationId": conversationID}
	if !since.IsZero() {
		filter["timestamp"] = bson.M{"$gt": since.UTC()}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))

	return s.find(ctx, filter, opts)
}

// ListAround returns all conversation messages within +/- radius of center,
// oldest first.
func (s *MongoStore) ListAround(ctx context.Context, conversationID string, center time.Time, radius time.Duration) ([]*Message, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"timestamp": bson.M{
			"$gte": center.Add(-radius).UTC(),
			"$lte": center.Add(radius).UTC(),
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return s.find(ctx, filter, opts)
}

// MarkDelivered records delivery for userID. The write is a no-op when the
// entry already exists, the message is missing, or userID is the sender.
func (s *MongoStore) MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) error {
	field := "deliveredTo." + userID
	filter := bson.M{"_id": messageID, "senderId": bson.M{"$ne": userID}}
	update := bson.A{bson.M{"$set": bson.M{
		field: bson.M{"$ifNull": bson.A{"$" + field, at.UTC()}},
	}}}

	if _, err := s.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("marking delivered: %w", err)
	}
	return nil
}

// MarkRead records the read transition for userID, setting the delivered
// entry in the same atomic update if it was missing.
func (s *MongoStore) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	delivered := "deliveredTo." + userID
	read := "readBy." + userID
	filter := bson.M{"_id": messageID, "senderId": bson.M{"$ne": userID}}
	update := bson.A{bson.M{"$set": bson.M{
		delivered: bson.M{"$ifNull": bson.A{"$" + delivered, at.UTC()}},
		read:      bson.M{"$ifNull": bson.A{"$" + read, at.UTC()}},
	}}}

	if _, err := s.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	return nil
}

// MarkConversationRead applies the read transition to every conversation
// message not sent by userID in one batched write.
func (s *MongoStore) MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error) {
	delivered := "deliveredTo." + userID
	read := "readBy." + userID
	filter := bson.M{"conversationId": conversationID, "senderId": bson.M{"$ne": userID}}
	update := bson.A{bson.M{"$set": bson.M{
		delivered: bson.M{"$ifNull": bson.A{"$" + delivered, at.UTC()}},
		read:      bson.M{"$ifNull": bson.A{"$" + read, at.UTC()}},
	}}}

	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}

	s.logger.Debug("marked conversation read", "conversation", conversationID, "user", userID, "modified", res.ModifiedCount)
	return res.ModifiedCount, nil
}

// SetStatus updates the stored aggregate status. Missing messages are ignored.
func (s *MongoStore) SetStatus(ctx context.Context, messageID string, status Status) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return nil
}

// SearchText runs a text-index search scoped to one conversation, ranked by
// relevance, with server-side paging.
func (s *MongoStore) SearchText(ctx context.Context, conversationID, query string, skip, limit int) ([]*Message, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"$text":          bson.M{"$search": query},
	}

	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	return s.find(ctx, filter, opts)
}

// SearchLiteral matches the query as a case-insensitive literal substring,
// newest first.
func (s *MongoStore) SearchLiteral(ctx context.Context, conversationID, literal string, skip, limit int) ([]*Message, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"content":        primitive.Regex{Pattern: regexp.QuoteMeta(literal), Options: "i"},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	return s.find(ctx, filter, opts)
}

// CountByConversation returns the number of messages in a conversation.
func (s *MongoStore) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"conversationId": conversationID})
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// SampleIDs returns up to limit message ids from a conversation.
func (s *MongoStore) SampleIDs(ctx context.Context, conversationID string, limit int) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("sampling message ids: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding message ids: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// ListConversationIDs returns the distinct conversation ids present in the
// collection. Used by the cleanup reconciler to find orphaned messages.
func (s *MongoStore) ListConversationIDs(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "conversationId", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("listing conversation ids: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// PurgeConversation deletes every message in a conversation and returns the
// number removed.
func (s *MongoStore) PurgeConversation(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"conversationId": conversationID})
	if err != nil {
		return 0, fmt.Errorf("purging messages: %w", err)
	}

	s.logger.Debug("purged conversation messages", "conversation", conversationID, "deleted", res.DeletedCount)
	return res.DeletedCount, nil
}

// Ping verifies the document store is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from the document store.
func (s *MongoStore) Close(ctx context.Context) error {
	s.logger.Info("closing message store")
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Message, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	var msgs []*Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}

	if msgs == nil {
		msgs = []*Message{}
	}
	return msgs, nil
}
