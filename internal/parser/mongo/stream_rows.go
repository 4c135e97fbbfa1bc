// Package mongo streams staged incident documents out of a MongoDB
// collection into pooled rows.
package mongo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"gtdetl/internal/config"
	"gtdetl/internal/etlerr"
	"gtdetl/internal/transformer"
)

// DefaultBatchSize matches the batch size incidents are staged with.
const DefaultBatchSize = 5000

// Cursor is the subset of *mongo.Cursor used to stream documents.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Source is a connected document source. Close it when done.
type Source struct {
	client *mongo.Client
}

// Open connects to uri and pings the primary. Failures are returned as
// *etlerr.ConnectivityError.
func Open(ctx context.Context, uri string, timeout time.Duration) (*Source, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &etlerr.ConnectivityError{Backend: "mongo", Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &etlerr.ConnectivityError{Backend: "mongo", Err: err}
	}
	return &Source{client: client}, nil
}

// Close disconnects the client.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// StreamRows reads every document of database.collection into out. Only
// the fields that can fill columns are fetched.
// Options: batch_size (5000), header_map.
func (s *Source) StreamRows(
	ctx context.Context,
	database, collection string,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	batch := opt.Int("batch_size", DefaultBatchSize)
	findOpts := options.Find().
		SetBatchSize(int32(batch)).
		SetProjection(projection(sourceKeys(columns, opt.StringMap("header_map"))))

	cur, err := s.client.Database(database).Collection(collection).Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return errors.Wrapf(err, "mongo: find %s.%s", database, collection)
	}
	return StreamCursor(ctx, cur, columns, opt, out, onErr)
}

// StreamCursor drains cur into out, one row per document. _id is never
// mapped. Undecodable documents are reported through onErr and skipped.
func StreamCursor(
	ctx context.Context,
	cur Cursor,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer func() { _ = cur.Close(context.Background()) }()

	keys := sourceKeys(columns, opt.StringMap("header_map"))

	line := 0
	for cur.Next(ctx) {
		line++

		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("mongo: decode document: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(columns))
		row.Line = line
		for i, ks := range keys {
			if ks[0] == "_id" {
				continue
			}
			for _, k := range ks {
				if v, ok := doc[k]; ok {
					row.Set(i, normalize(v))
					break
				}
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
	if err := cur.Err(); err != nil {
		return errors.Wrap(err, "mongo: cursor")
	}
	return ctx.Err()
}

// sourceKeys lists, per column, the document fields that may carry it.
func sourceKeys(columns []string, headerMap map[string]string) [][]string {
	keys := make([][]string, len(columns))
	for i, c := range columns {
		keys[i] = []string{c}
		for src, dst := range headerMap {
			if dst == c {
				keys[i] = append(keys[i], src)
			}
		}
		sort.Strings(keys[i][1:])
	}
	return keys
}

// projection includes every field in keys and excludes _id.
func projection(keys [][]string) bson.D {
	proj := bson.D{{Key: "_id", Value: 0}}
	seen := map[string]bool{"_id": true}
	for _, ks := range keys {
		for _, k := range ks {
			if !seen[k] {
				seen[k] = true
				proj = append(proj, bson.E{Key: k, Value: 1})
			}
		}
	}
	return proj
}

// normalize maps BSON-specific types onto plain Go scalars.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.Decimal128:
		return t.String()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case bson.A:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			if s, ok := it.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return v
	}
}
