package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campuslink/portal-api/internal/models"
)

// ErrNotFound signals a missing document to the service layer without
// leaking driver internals.
var ErrNotFound = fmt.Errorf("event not found")

// EventRepository persists schedule events in the document store.
type EventRepository struct {
	collection *mongo.Collection
}

// NewEventRepository constructs an event repository.
func NewEventRepository(collection *mongo.Collection) *EventRepository {
	return &EventRepository{collection: collection}
}

// Insert stores a new event and assigns its id and timestamps.
func (r *EventRepository) Insert(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		event.ID = id
	}
	return nil
}

// GetByID fetches one event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var event models.Event
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&event); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &event, nil
}

// Replace overwrites the stored document with the given event.
func (r *EventRepository) Replace(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": event.ID}, event)
	if err != nil {
		return fmt.Errorf("replace event %s: %w", event.ID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts or updates an event keyed by (title, isoDate) and reports
// whether a new document was created. The key keeps repeated spreadsheet
// uploads from duplicating occurrences.
func (r *EventRepository) Upsert(ctx context.Context, event *models.Event) (inserted bool, err error) {
	now := time.Now().UTC()
	event.UpdatedAt = now

	filter := bson.M{"title": event.Title, "isoDate": event.ISODate}
	update := bson.M{
		"$set": bson.M{
			"title":       event.Title,
			"description": event.Description,
			"category":    event.Category,
			"dateType":    event.DateType,
			"isoDate":     event.ISODate,
			"startDate":   event.StartDate,
			"endDate":     event.EndDate,
			"month":       event.Month,
			"year":        event.Year,
			"weekOfMonth": event.WeekOfMonth,
			"time":        event.Time,
			"semester":    event.Semester,
			"userType":    event.UserType,
			"embedding":   event.Embedding,
			"source":      event.Source,
			"uploadedBy":  event.UploadedBy,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert event %q: %w", event.Title, err)
	}
	if id, ok := result.UpsertedID.(primitive.ObjectID); ok {
		event.ID = id
	}
	return result.UpsertedCount > 0, nil
}

// Delete removes one event, reporting whether it existed.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll unconditionally removes every event and returns the count.
func (r *EventRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("delete all events: %w", err)
	}
	return result.DeletedCount, nil
}

// List returns events matching the structured filter, ordered by date
// ascending, with the year guard applied on top of the store query.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "isoDate", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Skip > 0 {
		opts.SetSkip(int64(filter.Skip))
	}

	cursor, err := r.collection.Find(ctx, BuildEventQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return ApplyYearGuard(events, filter.From, filter.To), nil
}

// ListWithEmbeddings fetches a bounded candidate set for the brute-force
// similarity fallback.
func (r *EventRepository) ListWithEmbeddings(ctx context.Context, limit int) ([]models.Event, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"embedding": bson.M{"$exists": true, "$ne": nil}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list embedded events: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode embedded events: %w", err)
	}
	return events, nil
}

// ListMissingEmbeddings fetches events that were persisted without a
// vector, oldest first, for the backfill worker.
func (r *EventRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	filter := bson.M{"$or": []bson.M{
		{"embedding": bson.M{"$exists": false}},
		{"embedding": nil},
	}}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list unembedded events: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode unembedded events: %w", err)
	}
	return events, nil
}

// SetEmbedding writes just the vector for one event without touching the
// rest of the document.
func (r *EventRepository) SetEmbedding(ctx context.Context, id primitive.ObjectID, vector []float32) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"embedding": vector, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("set embedding for %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// VectorSearch runs the managed vector-similarity index through an
// aggregation pipeline. Errors are returned verbatim so the caller can
// decide to fall back.
func (r *EventRepository) VectorSearch(ctx context.Context, index, path string, vector []float32, numCandidates, limit int) ([]models.ScoredEvent, error) {
	queryVector := make(bson.A, len(vector))
	for i, v := range vector {
		queryVector[i] = v
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: path},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: limit},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var results []models.ScoredEvent
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode vector search results: %w", err)
	}
	return results, nil
}
