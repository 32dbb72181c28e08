package coordinator

// Subscription receives every adopted forest. When the receiver falls behind
// the oldest pending update is dropped in favour of the newest, so a slow
// reader always converges on the latest forest.
type Subscription struct {
	id      uint64
	ch      chan Update
	owner   *Coordinator
	dropped uint64
}

// Subscribe registers a subscriber holding at most buffer pending updates.
func (c *Coordinator) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextID++
	s := &Subscription{id: c.nextID, ch: make(chan Update, buffer), owner: c}
	if c.State() == StateShuttingDown {
		close(s.ch)
		return s
	}
	c.subs[s.id] = s
	return s
}

// C delivers updates in revision order. It is closed by Close or when the
// coordinator stops.
func (s *Subscription) C() <-chan Update {
	return s.ch
}

// Dropped counts updates superseded before delivery.
func (s *Subscription) Dropped() uint64 {
	s.owner.subsMu.RLock()
	defer s.owner.subsMu.RUnlock()
	return s.dropped
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	c := s.owner
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if _, ok := c.subs[s.id]; ok {
		delete(c.subs, s.id)
		close(s.ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (c *Coordinator) Subscribers() int {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subs)
}

// publish never blocks the loop. The write lock keeps Close from closing a
// channel mid-offer and serializes the dropped counters.
func (c *Coordinator) publish(u Update) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, s := range c.subs {
		s.offer(u)
	}
}

func (s *Subscription) offer(u Update) {
	for {
		select {
		case s.ch <- u:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

func (c *Coordinator) closeSubscriptions() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, s := range c.subs {
		delete(c.subs, id)
		close(s.ch)
	}
}
