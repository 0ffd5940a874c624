package book

import (
	"sync"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/schema"
)

const maxPendingDiffs = 1024

type bufferedDiff struct {
	payload schema.BookDiffPayload
	token   uint64
}

// Synchronizer routes snapshot and diff messages to per-pair books. Diffs
// that arrive before the first snapshot are buffered and replayed once the
// snapshot lands; replay relies on the book's own token gate to discard
// entries the snapshot already covers.
type Synchronizer struct {
	mu      sync.Mutex
	books   map[string]*Book
	pending map[string][]bufferedDiff
	resync  chan string

	applied uint64
	dropped uint64
}

// NewSynchronizer tracks books for the given pairs.
func NewSynchronizer(pairs []string) *Synchronizer {
	s := &Synchronizer{
		books:   make(map[string]*Book, len(pairs)),
		pending: make(map[string][]bufferedDiff, len(pairs)),
		resync:  make(chan string, len(pairs)+1),
	}
	for _, pair := range pairs {
		s.books[pair] = New(pair)
	}
	return s
}

// Book returns the tracked book for pair. Asking for an untracked pair is a
// caller bug and returns an error rather than a lazily created empty book.
func (s *Synchronizer) Book(pair string) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[pair]
	if !ok {
		return nil, errs.New("book/lookup", errs.CodeInvalid,
			errs.WithMessage("order book not tracked for pair "+pair))
	}
	return b, nil
}

// Pairs returns the tracked trading pairs.
func (s *Synchronizer) Pairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.books))
	for pair := range s.books {
		out = append(out, pair)
	}
	return out
}

// ResyncRequests delivers pairs whose book needs a fresh REST snapshot.
func (s *Synchronizer) ResyncRequests() <-chan string { return s.resync }

// Handle applies one canonical snapshot or diff message and reports whether
// it changed a book. Messages for untracked pairs and non-book message types
// are ignored.
func (s *Synchronizer) Handle(msg *schema.Message) bool {
	if msg == nil {
		return false
	}
	switch msg.Type {
	case schema.MessageSnapshot:
		payload, ok := msg.Payload.(schema.BookSnapshotPayload)
		if !ok {
			return false
		}
		return s.applySnapshot(msg.Instrument, payload, msg.Token)
	case schema.MessageDiff:
		payload, ok := msg.Payload.(schema.BookDiffPayload)
		if !ok {
			return false
		}
		return s.applyDiff(msg.Instrument, payload, msg.Token)
	}
	return false
}

func (s *Synchronizer) applySnapshot(pair string, payload schema.BookSnapshotPayload, token uint64) bool {
	s.mu.Lock()
	b, ok := s.books[pair]
	if !ok {
		s.mu.Unlock()
		return false
	}
	buffered := s.pending[pair]
	delete(s.pending, pair)
	s.mu.Unlock()

	if !b.ApplySnapshot(payload, token) {
		observability.Log().Debug("stale snapshot ignored",
			observability.F("pair", pair), observability.F("token", token))
		return false
	}
	replayed := 0
	for _, diff := range buffered {
		if b.ApplyDiff(diff.payload, diff.token) {
			replayed++
		}
	}
	observability.Log().Info("order book snapshot applied",
		observability.F("pair", pair),
		observability.F("token", token),
		observability.F("replayed", replayed))
	return true
}

func (s *Synchronizer) applyDiff(pair string, payload schema.BookDiffPayload, token uint64) bool {
	s.mu.Lock()
	b, ok := s.books[pair]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if !b.Ready() {
		queue := append(s.pending[pair], bufferedDiff{payload: payload, token: token})
		if len(queue) > maxPendingDiffs {
			queue = queue[len(queue)-maxPendingDiffs:]
			s.requestResyncLocked(pair)
		}
		s.pending[pair] = queue
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if b.ApplyDiff(payload, token) {
		s.mu.Lock()
		s.applied++
		s.mu.Unlock()
		return true
	}
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
	observability.Log().Debug("stale book diff dropped",
		observability.F("pair", pair), observability.F("token", token))
	return false
}

// RequestResync asks for a fresh snapshot of pair. Duplicate requests while
// one is already queued are collapsed.
func (s *Synchronizer) RequestResync(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestResyncLocked(pair)
}

func (s *Synchronizer) requestResyncLocked(pair string) {
	select {
	case s.resync <- pair:
	default:
	}
}

// Stats reports applied and dropped diff counts since start.
func (s *Synchronizer) Stats() (applied, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied, s.dropped
}
