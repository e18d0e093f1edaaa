package servers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-access-client/backend"
	"github.com/jrsteele09/go-access-client/internal/broadcast"
	"github.com/jrsteele09/go-access-client/internal/utils"
	"github.com/jrsteele09/go-access-client/metrics"
	"github.com/jrsteele09/go-access-client/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyServerID = errors.New("server id is required")

// Backend is the part of the backend client the registry calls.
type Backend interface {
	ServerExists(ctx context.Context, serverID string) (bool, error)
	AccessStatus(ctx context.Context, serverID string) (backend.AccessStatus, error)
	RequestAccess(ctx context.Context, serverID string) error
}

var _ Backend = (*backend.Client)(nil)

// Registry is the single owner of the saved server list.
type Registry struct {
	store         store.Store
	backend       Backend
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	authenticated func() bool

	mu      sync.Mutex
	records []Record

	persistMu sync.Mutex
	updates   broadcast.Broadcaster[[]Record]
}

type RegistryOption func(*Registry)

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithAuthenticated makes Poll skip ticks while authenticated reports false.
func WithAuthenticated(authenticated func() bool) RegistryOption {
	return func(r *Registry) {
		r.authenticated = authenticated
	}
}

func New(s store.Store, client Backend, options ...RegistryOption) *Registry {
	r := &Registry{
		store:   s,
		backend: client,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Load reads the saved list. Saved statuses are never trusted: every record comes
// back idle with no remaining time.
func (r *Registry) Load(ctx context.Context) error {
	var saved []Record
	found, err := r.store.Get(ctx, storeKey, &saved)
	if err != nil {
		return errors.Wrap(err, "Registry.Load store.Get")
	}

	records := make([]Record, 0, len(saved))
	seen := make(map[string]bool, len(saved))
	if found {
		for _, rec := range saved {
			if rec.ID == "" || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			records = append(records, Record{ID: rec.ID, Status: StatusIdle})
		}
	}

	r.mu.Lock()
	r.records = records
	r.changedLocked()
	r.mu.Unlock()
	return nil
}

// CheckStatus asks the backend whether access to serverID is active and records the
// result. Failures become a status, never an error. The change is not persisted.
func (r *Registry) CheckStatus(ctx context.Context, serverID string) Status {
	status, err := r.backend.AccessStatus(ctx, serverID)
	if err == nil {
		next := StatusIdle
		if status.IsActive {
			next = StatusAccessGranted
		}
		r.update(serverID, next, status.TimeRemaining, true)
		r.metrics.ObserveStatusCheck(string(next))
		return next
	}

	next := StatusIdle
	switch backend.CodeOf(err) {
	case backend.CodeAuth:
		r.logger.Warn().Str("server", serverID).Msg("token rejected during status check")
	case backend.CodeNetwork, backend.CodeOffline:
		next = StatusOffline
	default:
		r.logger.Debug().Err(err).Str("server", serverID).Msg("status check failed")
	}
	r.update(serverID, next, nil, false)
	r.metrics.ObserveStatusCheck(string(next))
	return next
}

// SyncAll checks every saved server concurrently and waits for all of them.
func (r *Registry) SyncAll(ctx context.Context) {
	var g errgroup.Group
	for _, rec := range r.List() {
		id := rec.ID
		g.Go(func() error {
			r.CheckStatus(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// Add saves serverID after the backend confirms it exists.
func (r *Registry) Add(ctx context.Context, serverID string) error {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return ErrEmptyServerID
	}
	if _, ok := r.Get(serverID); ok {
		return backend.ErrDuplicate
	}

	exists, err := r.backend.ServerExists(ctx, serverID)
	if err != nil {
		return backend.Normalize(err)
	}
	if !exists {
		return backend.ErrNotFound
	}

	r.mu.Lock()
	if r.indexLocked(serverID) >= 0 {
		r.mu.Unlock()
		return backend.ErrDuplicate
	}
	r.records = append(r.records, Record{ID: serverID, Status: StatusIdle})
	r.changedLocked()
	r.mu.Unlock()

	return r.persist(ctx)
}

// RequestAccess asks the backend for access to serverID, marks it granted and then
// reconciles with the backend's view.
func (r *Registry) RequestAccess(ctx context.Context, serverID string) error {
	if err := r.backend.RequestAccess(ctx, serverID); err != nil {
		return backend.Normalize(err)
	}
	r.update(serverID, StatusAccessGranted, nil, false)
	r.CheckStatus(ctx, serverID)
	return nil
}

// Remove drops serverID from the saved list. Removing an unknown id is not an error.
func (r *Registry) Remove(ctx context.Context, serverID string) error {
	r.mu.Lock()
	i := r.indexLocked(serverID)
	if i < 0 {
		r.mu.Unlock()
		return nil
	}
	r.records = append(r.records[:i:i], r.records[i+1:]...)
	r.changedLocked()
	r.mu.Unlock()

	return r.persist(ctx)
}

// List returns a copy of the saved servers in the order they were added.
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) Get(serverID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(serverID)
	if i < 0 {
		return Record{}, false
	}
	return copyRecord(r.records[i]), true
}

// Subscribe streams the server list after every change, starting with the current list.
func (r *Registry) Subscribe() (<-chan []Record, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates.Subscribe(r.snapshotLocked())
}

// Poll runs SyncAll now and then every interval until ctx is done. A non-positive
// interval syncs once and then waits for ctx.
func (r *Registry) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		if r.authenticated == nil || r.authenticated() {
			r.SyncAll(ctx)
		}
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if r.authenticated == nil || r.authenticated() {
			r.SyncAll(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close ends all subscriptions.
func (r *Registry) Close() {
	r.updates.Close()
}

func (r *Registry) update(serverID string, status Status, remaining *string, setRemaining bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(serverID)
	if i < 0 {
		return
	}
	r.records[i].Status = status
	if setRemaining {
		r.records[i].TimeRemaining = utils.NonEmpty(remaining)
	}
	r.changedLocked()
}

// persist writes the list as it is now. Only list membership changes call it.
func (r *Registry) persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	list := r.List()
	if err := store.Put(ctx, r.store, storeKey, list); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist server list")
		return errors.Wrap(err, "Registry.persist")
	}
	return nil
}

func (r *Registry) indexLocked(serverID string) int {
	for i, rec := range r.records {
		if rec.ID == serverID {
			return i
		}
	}
	return -1
}

func (r *Registry) snapshotLocked() []Record {
	out := make([]Record, len(r.records))
	for i, rec := range r.records {
		out[i] = copyRecord(rec)
	}
	return out
}

func (r *Registry) changedLocked() {
	counts := map[string]int{
		string(StatusIdle):          0,
		string(StatusAccessGranted): 0,
		string(StatusOffline):       0,
	}
	for _, rec := range r.records {
		counts[string(rec.Status)]++
	}
	r.metrics.SetServerCounts(counts)
	r.updates.Publish(r.snapshotLocked())
}

func copyRecord(rec Record) Record {
	rec.TimeRemaining = utils.Clone(rec.TimeRemaining)
	return rec
}
