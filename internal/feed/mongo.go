package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cjeanneret/DualCap/internal/model"
)

const countersCollection = "counters"

// MongoStore keeps moments in a MongoDB collection. Numeric ids come from
// a counter document incremented atomically.
type MongoStore struct {
	client   *mongo.Client
	moments  *mongo.Collection
	counters *mongo.Collection
}

type momentDoc struct {
	ID          int64     `bson:"_id"`
	UserID      int       `bson:"user_id"`
	Nickname    string    `bson:"nickname"`
	PhoneNumber string    `bson:"phone_number,omitempty"`
	Birthdate   string    `bson:"birthdate,omitempty"`
	FrontPhoto  []byte    `bson:"front_photo"`
	BackPhoto   []byte    `bson:"back_photo"`
	Location    string    `bson:"location,omitempty"`
	DateCreated time.Time `bson:"date_created"`
}

func (d momentDoc) moment() model.Moment {
	return model.Moment{
		ID: d.ID,
		User: model.User{
			ID:          d.UserID,
			Nickname:    d.Nickname,
			PhoneNumber: d.PhoneNumber,
			Birthdate:   d.Birthdate,
		},
		FrontPhoto:  d.FrontPhoto,
		BackPhoto:   d.BackPhoto,
		Location:    d.Location,
		DateCreated: d.DateCreated.UTC(),
	}
}

// ConnectMongo connects, pings, and opens the moments collection of database.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		moments:  db.Collection("moments"),
		counters: db.Collection(countersCollection),
	}
	_, err = s.moments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date_created", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create moments index: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: "moments"}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next moment id: %w", err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) Create(ctx context.Context, in model.MomentInput, now time.Time) (model.Moment, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return model.Moment{}, err
	}
	doc := momentDoc{
		ID:          id,
		UserID:      in.User.ID,
		Nickname:    in.User.Nickname,
		PhoneNumber: in.User.PhoneNumber,
		Birthdate:   in.User.Birthdate,
		FrontPhoto:  in.FrontPhoto,
		BackPhoto:   in.BackPhoto,
		Location:    in.Location,
		DateCreated: now.UTC().Truncate(time.Millisecond), // BSON dates are millisecond precision
	}
	if _, err := s.moments.InsertOne(ctx, doc); err != nil {
		return model.Moment{}, fmt.Errorf("insert moment: %w", err)
	}
	return doc.moment(), nil
}

func (s *MongoStore) List(ctx context.Context) ([]model.Moment, error) {
	cur, err := s.moments.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "date_created", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find moments: %w", err)
	}
	var docs []momentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode moments: %w", err)
	}
	out := make([]model.Moment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.moment())
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, id int64) (model.Moment, error) {
	var doc momentDoc
	err := s.moments.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Moment{}, ErrNotFound
	}
	if err != nil {
		return model.Moment{}, fmt.Errorf("find moment %d: %w", id, err)
	}
	return doc.moment(), nil
}
