package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"swapit-dashboard/internal/config"
)

// Registry hands out one pooled *sql.DB per database name, opening it on first use.
// Opens run outside the registry lock; concurrent callers for the same name
// wait for the first open instead of starting their own.
type Registry struct {
	cfg    config.Config
	open   func(config.Config, string) (*sql.DB, error)
	mu     sync.Mutex
	pools  map[string]*pool
	closed bool
}

type pool struct {
	ready chan struct{}
	db    *sql.DB
	err   error
}

func NewRegistry(cfg config.Config) *Registry {
	return &Registry{cfg: cfg, open: Open, pools: make(map[string]*pool)}
}

// Register adds an already opened pool under name. The registry owns it afterwards.
func (r *Registry) Register(name string, db *sql.DB) {
	p := &pool{ready: make(chan struct{}), db: db}
	close(p.ready)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[name] = p
}

func (r *Registry) Get(name string) (*sql.DB, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("db registry is closed")
	}
	p, ok := r.pools[name]
	if !ok {
		p = &pool{ready: make(chan struct{})}
		r.pools[name] = p
	}
	r.mu.Unlock()

	if ok {
		<-p.ready
		return p.db, p.err
	}

	db, err := r.open(r.cfg, name)

	r.mu.Lock()
	if err == nil && r.closed {
		_ = Close(db)
		db, err = nil, errors.New("db registry is closed")
	}
	if err != nil && r.pools[name] == p {
		// A failed open is retried by the next caller.
		delete(r.pools, name)
	}
	p.db, p.err = db, err
	close(p.ready)
	r.mu.Unlock()

	return db, err
}

// Names returns the names of the pools opened so far, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pools))
	for name, p := range r.pools {
		if p.db != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Ping checks every open pool.
func (r *Registry) Ping(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		db, err := r.Get(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var errs []error
	for name, p := range r.pools {
		if p.db == nil {
			continue
		}
		if err := Close(p.db); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.pools, name)
	}
	return errors.Join(errs...)
}
