package multitable

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gtdetl/internal/config"
	csvparser "gtdetl/internal/parser/csv"
	jsonparser "gtdetl/internal/parser/json"
	mongoparser "gtdetl/internal/parser/mongo"
	"gtdetl/internal/schema"
	"gtdetl/internal/transformer"
	"gtdetl/pkg/records"
)

// MongoTimeout bounds connecting to the staging document store.
const MongoTimeout = 10 * time.Second

// SourceFunc reads raw incidents. Tests substitute it to avoid I/O.
type SourceFunc func(ctx context.Context, src config.Source, log *zap.Logger) (*records.RecordSet, error)

// SourceColumns lists every column the parsers are asked for: the incident
// descriptor's names followed by their aliases.
func SourceColumns() []string {
	cols := schema.Incidents.Names()
	var aliases []string
	for a := range schema.Incidents.AliasMap() {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return append(cols, aliases...)
}

// ReadSource streams the configured source through its parser and collects
// the rows. Columns the source never fills are dropped from the result.
//
// Malformed records are logged and skipped; errors opening or reading the
// source abort.
func ReadSource(ctx context.Context, src config.Source, log *zap.Logger) (*records.RecordSet, error) {
	if log == nil {
		log = zap.NewNop()
	}
	columns := SourceColumns()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var skipped atomic.Int64
	onErr := func(line int, err error) {
		skipped.Add(1)
		log.Warn("skip malformed record", zap.Int("line", line), zap.Error(err))
	}

	rows := make(chan *transformer.Row, 256)
	produced := make(chan error, 1)
	go func() {
		defer close(rows)
		err := produce(ctx, src, columns, rows, onErr)
		if err != nil {
			cancel()
		}
		produced <- err
	}()

	rs, collectErr := transformer.Collect(ctx, columns, rows)
	if err := <-produced; err != nil {
		return nil, err
	}
	if collectErr != nil {
		return nil, errors.Wrap(collectErr, "collect source rows")
	}

	if n := skipped.Load(); n > 0 {
		log.Warn("source records skipped", zap.Int64("count", n))
	}
	return rs, nil
}

func produce(
	ctx context.Context,
	src config.Source,
	columns []string,
	out chan<- *transformer.Row,
	onErr func(int, error),
) error {
	opts := config.Options{}
	for k, v := range src.Options {
		opts[k] = v
	}

	switch src.Kind {
	case "csv":
		if src.File == nil {
			return fmt.Errorf("source: csv needs a file")
		}
		f, err := os.Open(src.File.Path)
		if err != nil {
			return errors.Wrap(err, "open source")
		}
		if _, set := opts["encoding"]; !set && src.File.Encoding != "" {
			opts["encoding"] = src.File.Encoding
		}
		return errors.Wrapf(csvparser.StreamRows(ctx, f, columns, opts, out, onErr), "read %s", src.File.Path)

	case "json":
		if src.File == nil {
			return fmt.Errorf("source: json needs a file")
		}
		f, err := os.Open(src.File.Path)
		if err != nil {
			return errors.Wrap(err, "open source")
		}
		defer f.Close()
		return errors.Wrapf(jsonparser.StreamRows(ctx, f, columns, opts, out, onErr), "read %s", src.File.Path)

	case "mongo":
		if src.Mongo == nil {
			return fmt.Errorf("source: mongo needs a mongo block")
		}
		m, err := mongoparser.Open(ctx, src.Mongo.URI, MongoTimeout)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close(context.Background()) }()
		return m.StreamRows(ctx, src.Mongo.Database, src.Mongo.Collection, columns, opts, out, onErr)

	default:
		return fmt.Errorf("source: unsupported kind %q", src.Kind)
	}
}
