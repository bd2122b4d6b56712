package checkpoint

import (
	"errors"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "ckpt/"

// Meta describes one saved checkpoint.
type Meta struct {
	ID         string             `msgpack:"id"`
	Created    time.Time          `msgpack:"created"`
	Meta       map[string]float64 `msgpack:"meta"`
	EndOfEpoch bool               `msgpack:"end_of_epoch"`
	Files      []string           `msgpack:"files"`
}

// IndexOptions configures the badger-backed checkpoint index.
type IndexOptions struct {
	Dir string
	// InMemory keeps the index in RAM only; handy for tests.
	InMemory bool
}

// Index records checkpoint metadata so the best checkpoint can be found
// without listing the artifact store.
type Index struct {
	db *badger.DB
}

func OpenIndex(opts IndexOptions) (*Index, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("checkpoint: index dir is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

func (x *Index) Put(m Meta) error {
	val, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+m.ID), val)
	})
}

func (x *Index) Delete(id string) error {
	err := x.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// List returns all checkpoints, oldest first.
func (x *Index) List() ([]Meta, error) {
	var out []Meta
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var m Meta
			if err := msgpack.Unmarshal(val, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, err
}

func (x *Index) Close() error { return x.db.Close() }

type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { logrus.Errorf("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { logrus.Warnf("badger: "+f, v...) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}
