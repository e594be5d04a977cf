package assets

import (
	"bytes"
	"context"
	"errors"

	"DMChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bucketName = "assets"

// GridFSStore keeps assets in a GridFS bucket; the content type lives in file metadata.
type GridFSStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(db *mongo.Database) (*GridFSStore, error) {
	b, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, errs.ErrStore.WrapErr(err, "open gridfs bucket")
	}
	return &GridFSStore{bucket: b}, nil
}

type fileMeta struct {
	ContentType string `bson:"contentType"`
}

func (g *GridFSStore) Put(_ context.Context, a *Asset) error {
	opts := options.GridFSUpload().SetMetadata(fileMeta{ContentType: a.ContentType})
	if err := g.bucket.UploadFromStreamWithID(a.ID, a.ID, bytes.NewReader(a.Data), opts); err != nil {
		return errs.ErrStore.WrapErr(err, "upload asset", "id", a.ID)
	}
	return nil
}

func (g *GridFSStore) Get(ctx context.Context, id string) (*Asset, error) {
	cur, err := g.bucket.Find(bson.M{"_id": id})
	if err != nil {
		return nil, errs.ErrStore.WrapErr(err, "find asset", "id", id)
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, errs.ErrStore.WrapErr(err, "find asset", "id", id)
		}
		return nil, errs.ErrRecordNotFound.WrapMsg("asset not found", "id", id)
	}
	var file struct {
		Metadata fileMeta `bson:"metadata"`
	}
	if err := cur.Decode(&file); err != nil {
		return nil, errs.ErrStore.WrapErr(err, "decode asset", "id", id)
	}

	var buf bytes.Buffer
	if _, err := g.bucket.DownloadToStream(id, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, errs.ErrRecordNotFound.WrapMsg("asset not found", "id", id)
		}
		return nil, errs.ErrStore.WrapErr(err, "download asset", "id", id)
	}
	return &Asset{ID: id, ContentType: file.Metadata.ContentType, Data: buf.Bytes()}, nil
}
