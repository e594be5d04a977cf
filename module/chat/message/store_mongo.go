package message

import (
	"context"
	"errors"
	"time"

	"DMChat/data/database/mgo/mongoutil"
	chatmodel "DMChat/module/chat/model"
	"DMChat/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	fieldID         = "_id"
	fieldSeq        = "seq"
	fieldSenderID   = "senderId"
	fieldReceiverID = "receiverId"
	fieldSeen       = "seen"
	fieldCreatedAt  = "createdAt"
)

var newestFirst = bson.D{{Key: fieldCreatedAt, Value: -1}, {Key: fieldSeq, Value: -1}}

type MongoStore struct {
	stamp *Stamper
	coll  *mongo.Collection
}

// NewMongoStore binds the messages collection and creates its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database, gen *ids.Generator) (*MongoStore, error) {
	s := &MongoStore{
		stamp: NewStamper(gen),
		coll:  db.Collection(chatmodel.MessageTableName),
	}
	err := mongoutil.EnsureIndexes(ctx, s.coll,
		mongo.IndexModel{Keys: bson.D{{Key: fieldSenderID, Value: 1}, {Key: fieldReceiverID, Value: 1}, {Key: fieldCreatedAt, Value: 1}, {Key: fieldSeq, Value: 1}}},
		mongo.IndexModel{Keys: bson.D{{Key: fieldReceiverID, Value: 1}, {Key: fieldSeen, Value: 1}}},
	)
	if err != nil {
		return nil, err
	}
	var last chatmodel.Message
	err = s.coll.FindOne(ctx, bson.M{}, options.FindOne().SetSort(newestFirst)).Decode(&last)
	switch {
	case err == nil:
		s.stamp.Observe(last.CreatedAt)
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, mongoutil.MapErr(err, "load newest message")
	}
	return s, nil
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{fieldSenderID: a, fieldReceiverID: b},
		bson.M{fieldSenderID: b, fieldReceiverID: a},
	}}
}

func (s *MongoStore) Insert(ctx context.Context, m *chatmodel.Message) error {
	if err := validate(m); err != nil {
		return err
	}
	s.stamp.Stamp(m)
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return mongoutil.MapErr(err, "insert message", "sender", m.SenderID, "receiver", m.ReceiverID)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*chatmodel.Message, error) {
	var m chatmodel.Message
	if err := s.coll.FindOne(ctx, bson.M{fieldID: id}).Decode(&m); err != nil {
		return nil, mongoutil.MapErr(err, "message not found", "id", id)
	}
	return &m, nil
}

func (s *MongoStore) Conversation(ctx context.Context, a, b string) ([]*chatmodel.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: fieldCreatedAt, Value: 1}, {Key: fieldSeq, Value: 1}})
	cur, err := s.coll.Find(ctx, pairFilter(a, b), opts)
	if err != nil {
		return nil, mongoutil.MapErr(err, "find conversation", "a", a, "b", b)
	}
	defer cur.Close(ctx)
	out := make([]*chatmodel.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongoutil.MapErr(err, "decode conversation", "a", a, "b", b)
	}
	return out, nil
}

func (s *MongoStore) MarkSeen(ctx context.Context, id string) (*chatmodel.Message, error) {
	var m chatmodel.Message
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{fieldID: id},
		bson.M{"$set": bson.M{fieldSeen: true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, mongoutil.MapErr(err, "message not found", "id", id)
	}
	return &m, nil
}

func (s *MongoStore) MarkConversationSeen(ctx context.Context, reader, peer string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{fieldSenderID: peer, fieldReceiverID: reader, fieldSeen: false},
		bson.M{"$set": bson.M{fieldSeen: true}},
	)
	if err != nil {
		return 0, mongoutil.MapErr(err, "mark conversation seen", "reader", reader, "peer", peer)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{fieldSenderID: from, fieldReceiverID: to, fieldSeen: false})
	if err != nil {
		return 0, mongoutil.MapErr(err, "count unseen", "from", from, "to", to)
	}
	return n, nil
}

func (s *MongoStore) LastContact(ctx context.Context, a, b string) (time.Time, bool, error) {
	var m chatmodel.Message
	err := s.coll.FindOne(ctx, pairFilter(a, b),
		options.FindOne().SetSort(newestFirst).SetProjection(bson.M{fieldCreatedAt: 1})).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, mongoutil.MapErr(err, "last contact", "a", a, "b", b)
	}
	return m.CreatedAt, true, nil
}

// Close is a no-op; the mongo client is owned by the caller.
func (s *MongoStore) Close(context.Context) error { return nil }
