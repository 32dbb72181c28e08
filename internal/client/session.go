package client

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/resilience"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/id"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

// Session defaults.
const (
	DefaultAckTimeout = 5 * time.Second
	DefaultMinBackoff = 1 * time.Second
	DefaultMaxBackoff = 5 * time.Second
)

// Options configures a Session. URL is required.
type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:3001/ws.
	URL        string
	Header     http.Header
	AckTimeout time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
	Logger     *logging.Logger

	// OnUpdate runs on the session's read goroutine after a server forest
	// was adopted. f is shared and must not be modified.
	OnUpdate func(rev uint64, f tree.Forest)
	// OnStatus runs when the connection is established or lost.
	OnStatus func(connected bool)
}

// Result acknowledges an applied update.
type Result struct {
	Revision uint64
	// ID is the node created by an insert.
	ID string
}

type pending struct {
	requestID string
	intent    coordinator.Intent
	reply     chan outcome
	// visible until a server forest replaces the local one
	visible bool
}

type outcome struct {
	res Result
	err error
}

// Session keeps a local replica of the forest in sync with the server.
//
// Updates are applied to the local forest immediately and confirmed by the
// server's acknowledgement. The replica is rebuilt from the last confirmed
// forest plus the updates still waiting for an answer, so a rejected update
// simply disappears. A forest broadcast by the server replaces the local
// forest wholesale: pending updates stop being shown and only reappear once
// their acknowledgement confirms them (last write wins).
type Session struct {
	opts   Options
	logger *logging.Logger
	dialer *websocket.Dialer

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	synced    chan struct{}
	syncOnce  sync.Once

	writeMu sync.Mutex

	mu           sync.Mutex
	conn         *websocket.Conn
	fresh        bool
	confirmed    tree.Forest
	confirmedRev uint64
	local        tree.Forest
	inflight     []*pending
	sent         map[string]*pending
	acked        map[uint64]coordinator.Intent
}

// Dial connects to the server and returns once its snapshot has been
// received. Later disconnects are retried in the background until Close.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	s := newSession(opts)

	conn, _, err := s.dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	s.attach(conn)
	go s.run(conn)

	select {
	case <-s.synced:
		return s, nil
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

func newSession(opts Options) *Session {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:      opts,
		logger:    opts.Logger.Named("client").With(zap.String("url", opts.URL)),
		dialer:    dialer,
		ctx:       ctx,
		cancel:    cancel,
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		synced:    make(chan struct{}),
		confirmed: tree.Forest{},
		local:     tree.Forest{},
		sent:      make(map[string]*pending),
		acked:     make(map[uint64]coordinator.Intent),
	}
}

// Forest returns a copy of the local forest.
func (s *Session) Forest() tree.Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.Clone()
}

// Revision returns the revision of the last confirmed forest.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmedRev
}

// Connected reports whether the websocket is currently up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Update applies in locally, sends it and waits for the server's answer.
//
// A change the local forest already rejects is returned without being sent.
// While disconnected the change is applied locally and ErrOffline is
// returned; it is never replayed. Inserts get their node id here so the local
// forest and the server agree on it.
func (s *Session) Update(ctx context.Context, in coordinator.Intent) (Result, error) {
	select {
	case <-s.closed:
		return Result{}, ErrClosed
	default:
	}

	if in.Op == coordinator.OpReplace && len(in.Forest) == 0 {
		in = coordinator.Intent{Op: coordinator.OpClear}
	}
	newID := ""
	if in.Op == coordinator.OpInsert {
		newID = id.NewNodeID()
		in = in.Materialize(newID)
	}

	s.mu.Lock()
	next, _, err := in.Apply(s.local, id.NewNodeID)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	s.local = next
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return Result{ID: newID}, ErrOffline
	}
	p := &pending{requestID: id.NewRequestID().String(), intent: in, reply: make(chan outcome, 1), visible: true}
	s.inflight = append(s.inflight, p)
	s.sent[p.requestID] = p
	s.mu.Unlock()

	if err := s.send(conn, p); err != nil {
		s.logger.Debug("send failed", zap.Error(err))
		s.abandon(p, true)
		return Result{ID: newID}, ErrOffline
	}

	timer := time.NewTimer(s.opts.AckTimeout)
	defer timer.Stop()

	select {
	case o := <-p.reply:
		if o.err == nil && o.res.ID == "" {
			o.res.ID = newID
		}
		return o.res, o.err
	case <-timer.C:
		s.abandon(p, false)
		return Result{}, ErrAckTimeout
	case <-ctx.Done():
		s.abandon(p, false)
		return Result{}, ctx.Err()
	case <-s.closed:
		return Result{}, ErrClosed
	}
}

// Close disconnects and stops reconnecting.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.closed)

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			s.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.writeMu.Unlock()
			_ = conn.Close()
		}
	})

	select {
	case <-s.done:
	case <-time.After(s.opts.AckTimeout):
	}
	return nil
}

func (s *Session) send(conn *websocket.Conn, p *pending) error {
	data, err := sonic.Marshal(p.intent)
	if err != nil {
		return err
	}
	frame, err := sonic.Marshal(types.Envelope{Event: types.EventUpdate, RequestID: p.requestID, Data: data})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.AckTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// abandon stops waiting for p. Unless forget is set a late acknowledgement
// is still folded into the confirmed forest.
func (s *Session) abandon(p *pending, forget bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropInflightLocked(p)
	if forget {
		delete(s.sent, p.requestID)
	}
	s.rebuildLocked()
}

func (s *Session) run(conn *websocket.Conn) {
	defer close(s.done)
	backoff := resilience.NewBackoff(s.opts.MinBackoff, s.opts.MaxBackoff)

	for {
		s.readLoop(conn)
		s.detach(conn)

		conn = nil
		for conn == nil {
			if err := resilience.Sleep(s.ctx, backoff.Next()); err != nil {
				return
			}
			c, _, err := s.dialer.DialContext(s.ctx, s.opts.URL, s.opts.Header)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Debug("reconnect failed", zap.Int("attempt", backoff.Attempts()), zap.Error(err))
				continue
			}
			conn = c
		}
		backoff.Reset()
		s.attach(conn)
	}
}

func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.fresh = true
	s.mu.Unlock()

	s.logger.Debug("connected")
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(true)
	}
}

// detach fails every update still waiting for an answer and falls back to
// the confirmed forest.
func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	waiting := s.inflight
	s.inflight = nil
	s.sent = make(map[string]*pending)
	s.acked = make(map[uint64]coordinator.Intent)
	s.local = s.confirmed
	s.mu.Unlock()
	_ = conn.Close()

	for _, p := range waiting {
		p.reply <- outcome{err: ErrOffline}
	}

	select {
	case <-s.closed:
		return
	default:
	}
	s.logger.Info("disconnected, reconnecting", zap.Int("failed_updates", len(waiting)))
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(false)
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		var env types.Envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			s.logger.Warn("malformed frame", zap.Error(err))
			continue
		}

		switch env.Event {
		case types.EventUpdated:
			s.handleUpdated(env)
		case types.EventSaved:
			s.handleSaved(env)
		case types.EventError:
			s.handleError(env)
		case types.EventPong:
		default:
			s.logger.Debug("ignoring event", zap.String("event", env.Event))
		}
	}
}

func (s *Session) handleUpdated(env types.Envelope) {
	var u types.Updated
	if err := sonic.Unmarshal(env.Data, &u); err != nil {
		s.logger.Warn("malformed update", zap.Error(err))
		return
	}
	var f tree.Forest
	if err := sonic.Unmarshal(u.Data, &f); err != nil {
		s.logger.Warn("malformed forest", zap.Uint64("revision", u.Revision), zap.Error(err))
		return
	}
	if f == nil {
		f = tree.Forest{}
	}

	s.mu.Lock()
	adopted := s.adoptLocked(u.Revision, f)
	local := s.local
	s.mu.Unlock()

	if !adopted {
		return
	}
	s.syncOnce.Do(func() { close(s.synced) })
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(u.Revision, local)
	}
}

func (s *Session) handleSaved(env types.Envelope) {
	var saved types.Saved
	if err := sonic.Unmarshal(env.Data, &saved); err != nil {
		s.logger.Warn("malformed acknowledgement", zap.Error(err))
		return
	}

	s.mu.Lock()
	p, ok := s.sent[env.RequestID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sent, env.RequestID)
	s.dropInflightLocked(p)
	s.incorporateLocked(saved.Revision, p.intent)
	s.rebuildLocked()
	s.mu.Unlock()

	p.reply <- outcome{res: Result{Revision: saved.Revision, ID: saved.ID}}
}

func (s *Session) handleError(env types.Envelope) {
	var failure types.Failure
	if err := sonic.Unmarshal(env.Data, &failure); err != nil {
		s.logger.Warn("malformed error", zap.Error(err))
		return
	}
	remote := &RemoteError{Code: failure.Code, Message: failure.Error}

	s.mu.Lock()
	p, ok := s.sent[env.RequestID]
	if ok {
		delete(s.sent, env.RequestID)
		s.dropInflightLocked(p)
		s.rebuildLocked()
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("server error", zap.String("request_id", env.RequestID), zap.Error(remote))
		return
	}
	p.reply <- outcome{err: remote}
}

// adoptLocked makes f the confirmed forest unless it is older than what the
// session already holds. The first forest after connecting is always taken.
func (s *Session) adoptLocked(rev uint64, f tree.Forest) bool {
	if !s.fresh && rev <= s.confirmedRev {
		return false
	}
	s.fresh = false
	s.confirmed = f
	s.confirmedRev = rev
	for _, p := range s.inflight {
		p.visible = false
	}
	for r := range s.acked {
		if r <= rev {
			delete(s.acked, r)
		}
	}
	s.replayLocked()
	s.rebuildLocked()
	return true
}

// incorporateLocked folds an acknowledged intent into the confirmed forest.
// The server does not echo the originator's own change, so the session
// rebuilds revision rev from rev-1. An acknowledgement that overtook the
// forest it builds on waits in acked.
func (s *Session) incorporateLocked(rev uint64, in coordinator.Intent) {
	switch {
	case s.fresh:
		s.acked[rev] = in
	case rev <= s.confirmedRev:
	case rev == s.confirmedRev+1:
		s.acked[rev] = in
		s.replayLocked()
	default:
		s.acked[rev] = in
	}
}

func (s *Session) replayLocked() {
	for {
		in, ok := s.acked[s.confirmedRev+1]
		if !ok {
			return
		}
		delete(s.acked, s.confirmedRev+1)

		next, _, err := in.Apply(s.confirmed, id.NewNodeID)
		if err != nil {
			s.logger.Warn("replica diverged from server, resyncing",
				zap.Uint64("revision", s.confirmedRev+1),
				zap.String("op", in.Label()),
				zap.Error(err))
			s.resyncLocked()
			return
		}
		s.confirmed = next
		s.confirmedRev++
	}
}

// resyncLocked drops the connection; the snapshot sent on reconnect
// replaces the replica.
func (s *Session) resyncLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// rebuildLocked derives the local forest: the confirmed forest, then
// acknowledged changes still waiting for their base, then visible updates in
// flight. Steps that no longer apply are skipped.
func (s *Session) rebuildLocked() {
	local := s.confirmed
	for _, rev := range slices.Sorted(maps.Keys(s.acked)) {
		if next, _, err := s.acked[rev].Apply(local, id.NewNodeID); err == nil {
			local = next
		}
	}
	for _, p := range s.inflight {
		if !p.visible {
			continue
		}
		next, _, err := p.intent.Apply(local, id.NewNodeID)
		if err != nil {
			continue
		}
		local = next
	}
	s.local = local
}

func (s *Session) dropInflightLocked(p *pending) {
	for i, q := range s.inflight {
		if q == p {
			s.inflight = append(s.inflight[:i:i], s.inflight[i+1:]...)
			return
		}
	}
}
