package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// =============================================================================
// MongoDB Result Adapter
// =============================================================================

const collectionResults = "triage_results"

// ResultAdapter implements out.ResultSink using MongoDB.
type ResultAdapter struct {
	collection *mongo.Collection
}

var (
	_ out.ResultSink   = (*ResultAdapter)(nil)
	_ out.ResultReader = (*ResultAdapter)(nil)
)

// NewResultAdapter creates a new MongoDB result adapter.
func NewResultAdapter(db *mongo.Database) *ResultAdapter {
	return &ResultAdapter{collection: db.Collection(collectionResults)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ResultAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "rank", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "domain", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type resultDocument struct {
	RunID     string    `bson:"run_id"`
	Rank      int       `bson:"rank"`
	StartedAt time.Time `bson:"started_at"`
	Processed int       `bson:"processed"`
	Failed    int       `bson:"failed"`

	Record *domain.ResultRecord `bson:"record"`
}

// Write inserts one document per ranked record.
func (a *ResultAdapter) Write(ctx context.Context, run out.RunInfo, records []*domain.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))
	for i, r := range records {
		docs = append(docs, resultDocument{
			RunID:     run.RunID,
			Rank:      i + 1,
			StartedAt: run.StartedAt,
			Processed: run.Processed,
			Failed:    run.Failed,
			Record:    r,
		})
	}

	if _, err := a.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return apperr.DatabaseError("insert triage results", err)
	}
	return nil
}

// LatestRun returns the records of the most recent run in rank order.
func (a *ResultAdapter) LatestRun(ctx context.Context) ([]*domain.ResultRecord, error) {
	var latest resultDocument
	err := a.collection.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}}),
	).Decode(&latest)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("triage run")
	}
	if err != nil {
		return nil, apperr.DatabaseError("find latest run", err)
	}

	cursor, err := a.collection.Find(ctx, bson.M{"run_id": latest.RunID},
		options.Find().SetSort(bson.D{{Key: "rank", Value: 1}}),
	)
	if err != nil {
		return nil, apperr.DatabaseError("list triage results", err)
	}
	defer cursor.Close(ctx)

	var docs []resultDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.DatabaseError("decode triage results", err)
	}

	records := make([]*domain.ResultRecord, 0, len(docs))
	for _, d := range docs {
		if d.Record != nil {
			records = append(records, d.Record)
		}
	}
	return records, nil
}
