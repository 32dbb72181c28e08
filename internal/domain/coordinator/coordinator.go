package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/monitoring"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/storage"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/id"
)

// State of the coordinator lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// DefaultQueueSize bounds how many intents may wait for the loop.
const DefaultQueueSize = 256

// SeedFunc supplies the forest adopted when the store is empty on start.
type SeedFunc func() (tree.Forest, error)

// Options configures a Coordinator. Store is required.
type Options struct {
	Store     storage.Store
	Seed      SeedFunc
	Logger    *logging.Logger
	Metrics   *monitoring.Metrics
	QueueSize int
	NewID     tree.IDGenerator
}

// Result is what the originator of an applied intent receives.
type Result struct {
	Revision uint64
	Forest   tree.Forest
	// ID is the node created by an insert intent.
	ID string
}

// Update is published to subscribers after every adopted forest.
type Update struct {
	Revision uint64
	Forest   tree.Forest
	// Origin is the session that caused the change, "" for external reloads.
	Origin string
}

type request struct {
	ctx    context.Context
	origin string
	intent Intent
	reload *storage.ExternalChange
	reply  chan reply
}

type reply struct {
	res Result
	err error
}

// Coordinator is the single writer of the forest. Every intent goes through
// one goroutine, so intents apply strictly in arrival order and a forest is
// only adopted after it has been persisted.
type Coordinator struct {
	store   storage.Store
	seed    SeedFunc
	logger  *logging.Logger
	metrics *monitoring.Metrics
	newID   tree.IDGenerator

	state atomic.Int32
	queue chan request
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu       sync.RWMutex
	forest   tree.Forest
	revision uint64

	subsMu sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// New creates a coordinator in StateUninitialized.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.NewID == nil {
		opts.NewID = id.NewNodeID
	}

	return &Coordinator{
		store:   opts.Store,
		seed:    opts.Seed,
		logger:  opts.Logger.Named("coordinator"),
		metrics: opts.Metrics,
		newID:   opts.NewID,
		queue:   make(chan request, opts.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		forest:  tree.Forest{},
		subs:    make(map[uint64]*Subscription),
	}
}

// Start loads the forest, adopts the seed when the store is empty and starts
// the event loop. A document that cannot be parsed stops the start so it is
// never overwritten.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.State() != StateUninitialized {
		return fmt.Errorf("start in state %s", c.State())
	}

	f, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load forest: %w", err)
	}
	if f == nil {
		f = tree.Forest{}
	}
	if err := tree.Validate(f); err != nil {
		return fmt.Errorf("load forest: %w: %w", storage.ErrCorrupt, err)
	}

	if len(f) == 0 && c.seed != nil {
		seeded, err := c.seed()
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		if len(seeded) > 0 {
			if err := tree.Validate(seeded); err != nil {
				return fmt.Errorf("load seed: %w", err)
			}
			if err := c.store.Save(ctx, seeded); err != nil {
				return fmt.Errorf("persist seed: %w", err)
			}
			c.logger.Info("seed adopted", zap.Int("nodes", seeded.Count()))
			f = seeded
		}
	}

	c.mu.Lock()
	c.forest = f
	c.mu.Unlock()
	c.observeForest(f, 0)

	c.state.Store(int32(StateReady))
	go c.loop()

	c.logger.Info("coordinator ready",
		zap.Int("roots", len(f)),
		zap.Int("nodes", f.Count()))
	return nil
}

// Stop rejects new intents, fails the queued ones and closes every
// subscription. It waits for the loop or for ctx.
func (c *Coordinator) Stop(ctx context.Context) error {
	prev := State(c.state.Swap(int32(StateShuttingDown)))
	if prev != StateReady {
		c.closeSubscriptions()
		return nil
	}

	c.once.Do(func() { close(c.stop) })
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.closeSubscriptions()
	c.logger.Info("coordinator stopped", zap.Uint64("revision", c.Revision()))
	return nil
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Snapshot returns the authoritative forest and its revision. The forest
// is shared and must not be modified.
func (c *Coordinator) Snapshot() (tree.Forest, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.forest, c.revision
}

// Revision returns the revision of the authoritative forest.
func (c *Coordinator) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Apply queues intent on behalf of origin and waits for its outcome. On error
// the authoritative forest is unchanged and nothing was published.
func (c *Coordinator) Apply(ctx context.Context, origin string, intent Intent) (Result, error) {
	req := request{ctx: ctx, origin: origin, intent: intent, reply: make(chan reply, 1)}
	return c.submit(ctx, req)
}

// Reload adopts the document currently on disk, or rewrites the current
// forest when the file was removed.
func (c *Coordinator) Reload(ctx context.Context, change storage.ExternalChange) (Result, error) {
	req := request{ctx: ctx, reload: &change, reply: make(chan reply, 1)}
	return c.submit(ctx, req)
}

// Follow consumes external change notifications until the channel closes or
// ctx ends. With reload unset foreign writes are only logged.
func (c *Coordinator) Follow(ctx context.Context, changes <-chan storage.ExternalChange, reload bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if !reload {
				c.logger.Warn("data file changed by another process, keeping in-memory forest",
					zap.String("path", change.Path),
					zap.Bool("removed", change.Removed))
				c.recordExternal("ignored")
				continue
			}
			if _, err := c.Reload(ctx, change); err != nil {
				c.logger.Warn("external change not adopted", zap.String("path", change.Path), zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) submit(ctx context.Context, req request) (Result, error) {
	switch c.State() {
	case StateUninitialized:
		return Result{}, ErrNotReady
	case StateShuttingDown:
		return Result{}, ErrShuttingDown
	}

	select {
	case c.queue <- req:
	case <-c.done:
		return Result{}, ErrShuttingDown
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-c.done:
		return Result{}, ErrShuttingDown
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case req := <-c.queue:
			c.handle(req)
		case <-c.stop:
			c.drain()
			return
		}
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case req := <-c.queue:
			req.reply <- reply{err: ErrShuttingDown}
		default:
			return
		}
	}
}

func (c *Coordinator) handle(req request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- reply{err: err}
		return
	}
	if req.reload != nil {
		res, err := c.reload(req.ctx, *req.reload)
		req.reply <- reply{res: res, err: err}
		return
	}

	timer := monitoring.NewTimer(c.metrics, req.intent.Label())
	res, err := c.mutate(req)
	timer.Stop(outcome(err))
	req.reply <- reply{res: res, err: err}
}

func (c *Coordinator) mutate(req request) (Result, error) {
	c.mu.RLock()
	current := c.forest
	c.mu.RUnlock()

	log := c.logger.With(
		zap.String("op", req.intent.Label()),
		zap.String("origin", req.origin))

	next, newID, err := req.intent.Apply(current, c.newID)
	if err != nil {
		log.Debug("intent rejected", zap.String("intent", req.intent.String()), zap.Error(err))
		return Result{}, err
	}

	if err := c.persist(context.WithoutCancel(req.ctx), next); err != nil {
		// Memory keeps the last forest that reached disk.
		log.Error("persist failed, mutation rejected", zap.Error(err))
		return Result{}, err
	}

	rev := c.adopt(next, req.origin)
	log.Debug("intent applied", zap.Uint64("revision", rev), zap.String("id", newID))
	return Result{Revision: rev, Forest: next, ID: newID}, nil
}

func (c *Coordinator) reload(ctx context.Context, change storage.ExternalChange) (Result, error) {
	log := c.logger.With(zap.String("path", change.Path))

	if change.Removed {
		current, _ := c.Snapshot()
		if err := c.persist(ctx, current); err != nil {
			log.Error("could not restore removed data file", zap.Error(err))
			return Result{}, err
		}
		c.recordExternal("restored")
		log.Warn("data file removed externally, rewrote current forest")
		f, rev := c.Snapshot()
		return Result{Revision: rev, Forest: f}, nil
	}

	f, err := c.store.Load(ctx)
	if err != nil {
		c.recordExternal("rejected")
		return Result{}, err
	}
	if err := tree.Validate(f); err != nil {
		c.recordExternal("rejected")
		return Result{}, err
	}

	rev := c.adopt(f, "")
	c.recordExternal("reloaded")
	log.Info("external change adopted", zap.Uint64("revision", rev), zap.Int("nodes", f.Count()))
	return Result{Revision: rev, Forest: f}, nil
}

func (c *Coordinator) persist(ctx context.Context, f tree.Forest) error {
	start := time.Now()
	err := c.store.Save(ctx, f)
	if c.metrics != nil {
		c.metrics.RecordPersist(time.Since(start), err)
	}
	if err != nil && !errors.Is(err, storage.ErrIO) {
		err = fmt.Errorf("%w: %v", storage.ErrIO, err)
	}
	return err
}

// adopt swaps in f and publishes it. Only the loop calls it.
func (c *Coordinator) adopt(f tree.Forest, origin string) uint64 {
	c.mu.Lock()
	c.forest = f
	c.revision++
	rev := c.revision
	c.mu.Unlock()

	c.observeForest(f, rev)
	c.publish(Update{Revision: rev, Forest: f, Origin: origin})
	return rev
}

func (c *Coordinator) observeForest(f tree.Forest, rev uint64) {
	if c.metrics != nil {
		c.metrics.SetForest(f.Count(), rev)
	}
}

func (c *Coordinator) recordExternal(action string) {
	if c.metrics != nil {
		c.metrics.RecordExternalChange(action)
	}
}
