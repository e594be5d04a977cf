package store

import (
	"context"
	"time"

	"DMChat/data/database/mgo/mongoutil"
	usermodel "DMChat/module/user/model"
	"DMChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(usermodel.UserTableName)
	err := mongoutil.EnsureIndexes(ctx, coll,
		mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "fullName", Value: 1}}},
	)
	if err != nil {
		return nil, err
	}
	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) Create(ctx context.Context, u *usermodel.User) error {
	u.Email = usermodel.NormalizeEmail(u.Email)
	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrDuplicateKey.WrapMsg("Account already exists")
		}
		return mongoutil.MapErr(err, "create user", "email", u.Email)
	}
	return nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, kv ...any) (*usermodel.User, error) {
	var u usermodel.User
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, mongoutil.MapErr(err, "User not found", kv...)
	}
	return &u, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (*usermodel.User, error) {
	return s.findOne(ctx, bson.M{"_id": id}, "id", id)
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	email = usermodel.NormalizeEmail(email)
	return s.findOne(ctx, bson.M{"email": email}, "email", email)
}

func (s *MongoStore) List(ctx context.Context) ([]*usermodel.User, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "fullName", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mongoutil.MapErr(err, "list users")
	}
	defer cur.Close(ctx)
	out := make([]*usermodel.User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongoutil.MapErr(err, "decode users")
	}
	return out, nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, id string, patch usermodel.ProfilePatch) (*usermodel.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.FullName != nil {
		set["fullName"] = *patch.FullName
	}
	if patch.Bio != nil {
		set["bio"] = *patch.Bio
	}
	if patch.ProfilePic != nil {
		set["profilePic"] = *patch.ProfilePic
	}
	var u usermodel.User
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if err != nil {
		return nil, mongoutil.MapErr(err, "User not found", "id", id)
	}
	return &u, nil
}
