package game

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestStartGame_DealsRoles(t *testing.T) {
	players := []PlayerID{"a", "b", "c", "d", "e", "f"}

	for _, k := range []int{1, 2, 3} {
		e := newTestEnv(t, Options{})
		code := e.room(t, players...)

		e.m.SetImpostorCount("a", k)
		e.m.SetPool("a", []string{"Lighthouse", "Volcano", "Museum"})

		if err := e.m.StartGame("a"); err != nil {
			t.Fatal(err)
		}

		roles := e.roles(players...)
		if len(roles) != len(players) {
			t.Fatalf("k=%d: %d players got a role, want %d", k, len(roles), len(players))
		}

		impostors := e.impostors(players...)
		if len(impostors) != k {
			t.Errorf("k=%d: got %d impostors", k, len(impostors))
		}

		var word string
		for p, w := range roles {
			if w == ImpostorRole {
				continue
			}
			if word == "" {
				word = w
			}
			if w != word {
				t.Errorf("k=%d: %s got %q, others got %q", k, p, w, word)
			}
		}
		if !slices.Contains([]string{"Lighthouse", "Volcano", "Museum"}, word) {
			t.Errorf("k=%d: word %q is not from the pool", k, word)
		}

		started, ok := lastOf[RoundStartedMessage](e.rec, "f")
		if !ok || started.RoundNumber != 1 {
			t.Errorf("k=%d: roundStarted = %+v, want round 1", k, started)
		}

		state, _ := e.m.Room(code)
		if state.RoundNumber != 1 {
			t.Errorf("k=%d: RoundNumber = %d, want 1", k, state.RoundNumber)
		}
	}
}

func TestStartGame_NeedsThreePlayers(t *testing.T) {
	e := newTestEnv(t, Options{})
	code := e.room(t, "a", "b")

	if err := e.m.StartGame("a"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if len(e.roles("a", "b")) != 0 {
		t.Error("no roles should be dealt")
	}
	if state, _ := e.m.Room(code); state.RoundNumber != 0 {
		t.Errorf("RoundNumber = %d, want 0", state.RoundNumber)
	}
}

func TestStartGame_HostOnly(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.room(t, "a", "b", "c")

	if err := e.m.StartGame("b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if err := e.m.StartGame("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStartGame_ClampsImpostorsBelowMembers(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.room(t, "a", "b", "c")
	e.m.SetImpostorCount("a", 5)

	if err := e.m.StartGame("a"); err != nil {
		t.Fatal(err)
	}

	if got := len(e.impostors("a", "b", "c")); got != 2 {
		t.Errorf("got %d impostors among 3 players, want 2", got)
	}
}

func TestStartGame_ImpostorsVaryAcrossRounds(t *testing.T) {
	e := newTestEnv(t, Options{})
	players := []PlayerID{"a", "b", "c", "d"}
	e.room(t, players...)

	seen := make(map[PlayerID]bool)
	for range 40 {
		if err := e.m.StartGame("a"); err != nil {
			t.Fatal(err)
		}
		for _, p := range e.impostors(players...) {
			seen[p] = true
		}
	}

	if len(seen) != len(players) {
		t.Errorf("only %v were ever impostor over 40 rounds", seen)
	}
}

func TestStartGame_DefaultPool(t *testing.T) {
	e := newTestEnv(t, Options{DefaultPool: []string{"Only"}})
	e.room(t, "a", "b", "c")

	if err := e.m.StartGame("a"); err != nil {
		t.Fatal(err)
	}

	for p, w := range e.roles("a", "b", "c") {
		if w != ImpostorRole && w != "Only" {
			t.Errorf("%s got %q, want Only", p, w)
		}
	}
}

func TestStartGame_PrunesDisconnected(t *testing.T) {
	e := newTestEnv(t, Options{ReconnectGrace: time.Minute})
	code := e.room(t, "a", "b", "c", "d")

	e.m.Disconnect("d", connOf("d"))

	if err := e.m.StartGame("a"); err != nil {
		t.Fatal(err)
	}

	state, _ := e.m.Room(code)
	if !slices.Equal(state.Names, []string{"a", "b", "c"}) {
		t.Errorf("names = %v, want d pruned", state.Names)
	}
}

func TestStartGame_PrunedBelowMinimum(t *testing.T) {
	e := newTestEnv(t, Options{ReconnectGrace: time.Minute})
	e.room(t, "a", "b", "c")

	e.m.Disconnect("c", connOf("c"))

	if err := e.m.StartGame("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestLateJoinerSpectates(t *testing.T) {
	e := newTestEnv(t, Options{})
	code := e.room(t, "a", "b", "c")

	if err := e.m.StartGame("a"); err != nil {
		t.Fatal(err)
	}

	e.connect("late")
	if _, err := e.m.JoinRoom("late", code, "Late"); err != nil {
		t.Fatal(err)
	}

	role, ok := lastOf[RoleMessage](e.rec, "late")
	if !ok {
		t.Fatal("late joiner got no role message")
	}
	if !role.Spectating || role.Word != "" {
		t.Errorf("role = %+v, want spectating with no word", role)
	}

	// the next round deals them in
	if err := e.m.StartGame("a"); err != nil {
		t.Fatal(err)
	}
	role, _ = lastOf[RoleMessage](e.rec, "late")
	if role.Spectating || role.Word == "" || role.RoundNumber != 2 {
		t.Errorf("role = %+v, want a word in round 2", role)
	}
}

func TestRequestRole(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.room(t, "a", "b", "c")

	if err := e.m.RequestRole("b"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("before start err = %v, want ErrInvalidState", err)
	}
	if err := e.m.RequestRole("stranger"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stranger err = %v, want ErrNotFound", err)
	}

	e.m.StartGame("a")
	dealt := e.roles("b")["b"]

	e.rec.reset()
	if err := e.m.RequestRole("b"); err != nil {
		t.Fatal(err)
	}

	roles := messagesOf[RoleMessage](e.rec, "b")
	if len(roles) != 1 || roles[0].Word != dealt {
		t.Errorf("roles = %+v, want one resend of %q", roles, dealt)
	}
	if len(messagesOf[RoleMessage](e.rec, "a")) != 0 {
		t.Error("role resend must be private to the requester")
	}
}

func TestStartGame_DiscardsOpenVote(t *testing.T) {
	e := newTestEnv(t, Options{})
	code := e.room(t, "a", "b", "c")

	e.m.StartGame("a")
	e.m.StartVote("a")
	e.m.CastVote("b", "c")

	if err := e.m.StartGame("a"); err != nil {
		t.Fatal(err)
	}

	state, _ := e.m.Room(code)
	if state.VoteActive {
		t.Error("a new round must not inherit the previous vote")
	}
	if err := e.m.FinalizeRound("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("finalize err = %v, want ErrInvalidState", err)
	}
}
