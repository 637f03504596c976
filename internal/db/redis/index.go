package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/atlasmeta/contentdex/internal/db"
)

// Server error fragments RediSearch uses for index lifecycle conflicts.
const (
	msgIndexExists  = "index already exists"
	msgUnknownIndex = "unknown index name"
)

var fieldTypeArgs = map[db.IndexFieldType]string{
	db.IndexFieldNumeric: "NUMERIC",
	db.IndexFieldText:    "TEXT",
	db.IndexFieldTag:     "TAG",
}

// CreateIndex runs FT.CREATE for def. An existing index yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}
	err = s.do(ctx, s.b().Arbitrary(db.OpCreateIndex).Args(args...).Build()).Error()
	return ftError(db.OpCreateIndex, err, msgIndexExists, db.ErrIndexExists)
}

// DropIndex runs FT.DROPINDEX, keeping the indexed documents.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	err := s.do(ctx, s.b().Arbitrary(db.OpDropIndex).Args(name).Build()).Error()
	return ftError(db.OpDropIndex, err, msgUnknownIndex, db.ErrIndexNotFound)
}

// IndexExists reports whether FT.INFO knows the index.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	err := s.do(ctx, s.b().Arbitrary(db.OpIndexInfo).Args(name).Build()).Error()
	switch err = ftError(db.OpIndexInfo, err, msgUnknownIndex, db.ErrIndexNotFound); {
	case err == nil:
		return true, nil
	case errors.Is(err, db.ErrIndexNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ftError maps a server error containing msg to sentinel and wraps the rest.
func ftError(op string, err error, msg string, sentinel error) error {
	switch {
	case err == nil:
		return nil
	case isRedisErr(err, msg):
		return sentinel
	default:
		return &db.Error{Op: op, Err: err}
	}
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return nil, errors.New("at least one field is required")
	}

	storage := idx.StorageType
	if storage == "" {
		storage = db.StorageHash
	}
	args := []string{idx.Name, "ON", string(storage)}

	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	if idx.NoStopwords {
		args = append(args, "STOPWORDS", "0")
	}

	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		fieldArgs, err := buildFieldArgs(&idx.Fields[i])
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func buildFieldArgs(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}
	typ, ok := fieldTypeArgs[f.Type]
	if !ok {
		return nil, errors.New("unknown field type")
	}

	args := []string{f.Name}
	if f.Alias != "" {
		args = append(args, "AS", f.Alias)
	}
	args = append(args, typ)

	if f.Type == db.IndexFieldTag {
		if f.TagSeparator != "" {
			args = append(args, "SEPARATOR", f.TagSeparator)
		}
		if f.TagCaseSensitive {
			args = append(args, "CASESENSITIVE")
		}
	}
	if f.Sortable {
		args = append(args, "SORTABLE")
	}
	return args, nil
}
