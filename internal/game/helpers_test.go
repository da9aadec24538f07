package game

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// recorder is a Notifier that keeps every message per connection.
type recorder struct {
	mu   sync.Mutex
	msgs map[ConnectionID][]any
}

func newRecorder() *recorder {
	return &recorder{msgs: make(map[ConnectionID][]any)}
}

func (r *recorder) Notify(conn ConnectionID, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[conn] = append(r.msgs[conn], msg)
}

func (r *recorder) all(p PlayerID) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.msgs[connOf(p)]...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = make(map[ConnectionID][]any)
}

// messagesOf returns every message of type T delivered to p.
func messagesOf[T any](r *recorder, p PlayerID) []T {
	var out []T
	for _, m := range r.all(p) {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// lastOf returns the most recent message of type T delivered to p.
func lastOf[T any](r *recorder, p PlayerID) (T, bool) {
	msgs := messagesOf[T](r, p)
	if len(msgs) == 0 {
		var zero T
		return zero, false
	}
	return msgs[len(msgs)-1], true
}

func newSeeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func connOf(p PlayerID) ConnectionID {
	return ConnectionID("conn-" + string(p))
}

type testEnv struct {
	m     *Manager
	rec   *recorder
	clock *clockwork.FakeClock
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	rec := newRecorder()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))

	opts.Clock = clock
	opts.Logger = zerolog.Nop()
	if opts.Rand == nil {
		opts.Rand = newSeeded(1)
	}

	return &testEnv{
		m:     NewManager(rec, opts),
		rec:   rec,
		clock: clock,
	}
}

// connect attaches each player to its own connection.
func (e *testEnv) connect(players ...PlayerID) {
	for _, p := range players {
		e.m.Connect(p, connOf(p))
	}
}

// room creates a room hosted by the first player and joins the rest.
func (e *testEnv) room(t *testing.T, players ...PlayerID) string {
	t.Helper()

	e.connect(players...)

	code, err := e.m.CreateRoom(players[0], string(players[0]))
	if err != nil {
		t.Fatalf("CreateRoom() error: %v", err)
	}
	for _, p := range players[1:] {
		if _, err := e.m.JoinRoom(p, code, string(p)); err != nil {
			t.Fatalf("JoinRoom(%s) error: %v", p, err)
		}
	}

	return code
}

// roles returns the word each player was dealt in the latest round.
func (e *testEnv) roles(players ...PlayerID) map[PlayerID]string {
	out := make(map[PlayerID]string, len(players))
	for _, p := range players {
		if msg, ok := lastOf[RoleMessage](e.rec, p); ok {
			out[p] = msg.Word
		}
	}
	return out
}

func (e *testEnv) impostors(players ...PlayerID) []PlayerID {
	var out []PlayerID
	for p, word := range e.roles(players...) {
		if word == ImpostorRole {
			out = append(out, p)
		}
	}
	return out
}

func (e *testEnv) points(t *testing.T, code string) map[PlayerID]int {
	t.Helper()

	state, ok := e.m.Room(code)
	if !ok {
		t.Fatalf("room %s not found", code)
	}

	out := make(map[PlayerID]int, len(state.Players))
	for _, p := range state.Players {
		out[p.ID] = p.Points
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes. Timer callbacks
// from the fake clock run on their own goroutines.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
