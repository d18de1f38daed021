package walletsync

// Mailbox serializes access to the engine's shared state (cached_blocks,
// future_block_hashes, the sync-scoped maps, shut_down) onto a single
// goroutine, matching spec.md §5's "single-threaded cooperative" model:
// "If the target language's runtime is preemptive, wrap the core in a
// single mailbox/actor that serializes message handling." Every closure
// submitted via Send or Call runs strictly after the ones before it, in
// submission order, on exactly one goroutine.
//
// Network reader goroutines (one per peer, see network.Node) and the sync
// orchestrator's own goroutine (which needs to block on timers and signal
// channels without stalling the whole engine) both reach into shared state
// only through this mailbox — never directly.
type Mailbox struct {
	tasks chan func()
	done  chan struct{}
}

// NewMailbox creates a Mailbox with the given pending-task buffer size.
func NewMailbox(buffer int) *Mailbox {
	return &Mailbox{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run drains the mailbox until Close is called. Intended to be run in its
// own goroutine for the engine's entire lifetime.
func (m *Mailbox) Run() {
	for {
		select {
		case fn := <-m.tasks:
			fn()
		case <-m.done:
			return
		}
	}
}

// Send enqueues fn to run on the mailbox goroutine and returns immediately.
// A no-op after Close.
func (m *Mailbox) Send(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.done:
	}
}

// Call enqueues fn and blocks the calling goroutine until it has run on the
// mailbox goroutine, giving callers outside the actor (like the sync
// orchestrator) safe synchronous access to shared state without becoming
// the actor goroutine themselves. Returns immediately, without running fn,
// if the mailbox has already been closed.
func (m *Mailbox) Call(fn func()) {
	doneCh := make(chan struct{})
	sent := false
	select {
	case m.tasks <- func() { fn(); close(doneCh) }:
		sent = true
	case <-m.done:
	}
	if sent {
		select {
		case <-doneCh:
		case <-m.done:
		}
	}
}

// Close stops Run and makes further Send/Call calls no-ops.
func (m *Mailbox) Close() {
	close(m.done)
}
