package notifications

import (
	"context"
	"time"

	"campusdesk_go/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLogStore keeps notification logs in the "notifications" collection
// and clear watermarks in "notification_clears".
type MongoLogStore struct {
	logs   *mongo.Collection
	clears *mongo.Collection
}

func NewMongoLogStore(db *mongo.Database) *MongoLogStore {
	return &MongoLogStore{
		logs:   db.Collection("notifications"),
		clears: db.Collection("notification_clears"),
	}
}

// EnsureIndexes creates the feed and retention indexes.
func (s *MongoLogStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.logs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "target_type", Value: 1}, {Key: "target", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	return err
}

func (s *MongoLogStore) Append(ctx context.Context, entry *models.NotificationLog) error {
	_, err := s.logs.InsertOne(ctx, entry)
	return err
}

func feedFilter(q FeedQuery, since time.Time) bson.M {
	or := bson.A{bson.M{"target_type": models.TargetGlobal}}
	if q.Class != "" {
		or = append(or, bson.M{"target_type": models.TargetClass, "target": q.Class})
	}
	if q.Enrollment != "" {
		or = append(or, bson.M{"target_type": models.TargetEnrollment, "target": q.Enrollment})
	}
	filter := bson.M{"$or": or}
	if !since.IsZero() {
		filter["timestamp"] = bson.M{"$gt": since}
	}
	return filter
}

func (s *MongoLogStore) Feed(ctx context.Context, q FeedQuery) ([]models.NotificationLog, error) {
	var since time.Time
	if q.Enrollment != "" {
		var clear models.NotificationClear
		err := s.clears.FindOne(ctx, bson.M{"_id": q.Enrollment}).Decode(&clear)
		switch {
		case err == nil:
			since = clear.ClearedAt
		case err != mongo.ErrNoDocuments:
			return nil, err
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.logs.Find(ctx, feedFilter(q, since), opts)
	if err != nil {
		return nil, err
	}
	logs := []models.NotificationLog{}
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *MongoLogStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.logs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoLogStore) Clear(ctx context.Context, enrollment string, at time.Time) error {
	_, err := s.clears.UpdateOne(ctx,
		bson.M{"_id": enrollment},
		bson.M{"$set": bson.M{"cleared_at": at}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoLogStore) Before(ctx context.Context, cutoff time.Time) ([]models.NotificationLog, error) {
	cur, err := s.logs.Find(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var logs []models.NotificationLog
	err = cur.All(ctx, &logs)
	return logs, err
}

func (s *MongoLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.logs.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
