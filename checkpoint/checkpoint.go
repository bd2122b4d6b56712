// Package checkpoint saves and restores training state. Each registered
// Recoverable writes one blob per checkpoint; a badger index keeps the
// metadata used to pick the best checkpoint by a minimised metric.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/distributed"
	"github.com/Vishal8500/Text-to-Speech-with-Attention-Mechanism/storage"
)

var ErrNoCheckpoint = errors.New("checkpoint: no checkpoint found")

// Recoverable is any piece of training state that can round-trip through
// bytes: optimiser state, model parameters, schedulers, counters.
type Recoverable interface {
	Save(ctx context.Context) ([]byte, error)
	Load(ctx context.Context, data []byte) error
}

type Checkpointer struct {
	store storage.FileStore
	index *Index

	mu    sync.Mutex
	names []string
	recs  map[string]Recoverable

	// IsMain guards writes in multi-process runs.
	IsMain func() bool
	now    func() time.Time
}

func New(store storage.FileStore, index *Index) *Checkpointer {
	return &Checkpointer{
		store:  store,
		index:  index,
		recs:   map[string]Recoverable{},
		IsMain: distributed.IfMainProcess,
		now:    time.Now,
	}
}

// AddRecoverable registers r under name. Re-registering a name replaces it.
func (c *Checkpointer) AddRecoverable(name string, r Recoverable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.recs[name]; !ok {
		c.names = append(c.names, name)
	}
	c.recs[name] = r
}

// Save writes every recoverable into a new checkpoint. On non-main
// processes it is a no-op returning a zero Meta.
func (c *Checkpointer) Save(ctx context.Context, meta map[string]float64, endOfEpoch bool) (Meta, error) {
	if !c.IsMain() {
		return Meta{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	m := Meta{
		ID:         "CKPT+" + now.Format("2006-01-02+15-04-05") + "+" + uuid.New().String()[:8],
		Created:    now,
		Meta:       meta,
		EndOfEpoch: endOfEpoch,
	}
	for _, name := range c.names {
		data, err := c.recs[name].Save(ctx)
		if err != nil {
			return Meta{}, fmt.Errorf("checkpoint: save %s: %w", name, err)
		}
		p := path.Join(m.ID, name+".ckpt")
		if err := storage.WriteBlob(ctx, c.store, p, data); err != nil {
			return Meta{}, fmt.Errorf("checkpoint: write %s: %w", p, err)
		}
		m.Files = append(m.Files, p)
	}
	if err := c.index.Put(m); err != nil {
		return Meta{}, fmt.Errorf("checkpoint: index %s: %w", m.ID, err)
	}
	logrus.WithFields(logrus.Fields{"id": m.ID, "meta": meta}).Info("saved checkpoint")
	return m, nil
}

// SaveAndKeepOnly saves a checkpoint and then deletes every checkpoint
// except the one with the lowest value for each of minKeys. Checkpoints
// without a key's value are never kept for that key. With no keys, only
// the new checkpoint survives.
func (c *Checkpointer) SaveAndKeepOnly(ctx context.Context, meta map[string]float64, minKeys []string) error {
	saved, err := c.Save(ctx, meta, true)
	if err != nil || !c.IsMain() {
		return err
	}
	all, err := c.index.List()
	if err != nil {
		return err
	}
	keep := map[string]bool{}
	if len(minKeys) == 0 {
		keep[saved.ID] = true
	}
	for _, k := range minKeys {
		if best, ok := bestBy(all, k); ok {
			keep[best.ID] = true
		}
	}
	for _, m := range all {
		if keep[m.ID] {
			continue
		}
		if err := c.delete(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checkpointer) delete(ctx context.Context, m Meta) error {
	for _, f := range m.Files {
		if err := c.store.Delete(ctx, f); err != nil {
			return fmt.Errorf("checkpoint: delete %s: %w", f, err)
		}
	}
	if err := c.index.Delete(m.ID); err != nil {
		return err
	}
	logrus.WithField("id", m.ID).Debug("deleted checkpoint")
	return nil
}

// List returns all checkpoints, oldest first.
func (c *Checkpointer) List() ([]Meta, error) { return c.index.List() }

// Find returns the checkpoint with the lowest minKey value, or the most
// recent one when minKey is empty.
func (c *Checkpointer) Find(minKey string) (Meta, error) {
	all, err := c.index.List()
	if err != nil {
		return Meta{}, err
	}
	if minKey == "" {
		if len(all) == 0 {
			return Meta{}, ErrNoCheckpoint
		}
		return all[len(all)-1], nil
	}
	best, ok := bestBy(all, minKey)
	if !ok {
		return Meta{}, ErrNoCheckpoint
	}
	return best, nil
}

// RecoverIfPossible loads the checkpoint chosen by Find. It reports false
// without error when there is nothing to recover.
func (c *Checkpointer) RecoverIfPossible(ctx context.Context, minKey string) (bool, error) {
	m, err := c.Find(minKey)
	if errors.Is(err, ErrNoCheckpoint) {
		logrus.Info("would load a checkpoint here, but none found yet")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, c.Load(ctx, m)
}

// Load restores every registered recoverable that has a blob in m.
func (c *Checkpointer) Load(ctx context.Context, m Meta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.names {
		p := path.Join(m.ID, name+".ckpt")
		data, err := storage.ReadBlob(ctx, c.store, p)
		if err != nil {
			return fmt.Errorf("checkpoint: read %s: %w", p, err)
		}
		if err := c.recs[name].Load(ctx, data); err != nil {
			return fmt.Errorf("checkpoint: load %s: %w", name, err)
		}
	}
	logrus.WithField("id", m.ID).Info("loaded checkpoint")
	return nil
}

// bestBy picks the lowest value of key; ties go to the newest checkpoint.
func bestBy(all []Meta, key string) (Meta, bool) {
	var best Meta
	bestVal := math.Inf(1)
	found := false
	for _, m := range all {
		v, ok := m.Meta[key]
		if !ok || math.IsNaN(v) {
			continue
		}
		if !found || v <= bestVal {
			best, bestVal, found = m, v, true
		}
	}
	return best, found
}
