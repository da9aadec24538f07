package game

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
)

type published struct {
	subject string
	v       any
}

type capture struct {
	mu     sync.Mutex
	events []published
}

func (c *capture) Publish(subject string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, published{subject, v})
	return nil
}

func (c *capture) of(subject string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []any
	for _, e := range c.events {
		if e.subject == subject {
			out = append(out, e.v)
		}
	}
	return out
}

func TestFinalizeRound_PluralityOnImpostor(t *testing.T) {
	// Runs the three-player scenario across enough seeds to see B dealt as
	// impostor and as villager.
	var sawVillagersWin, sawImpostorsWin bool

	for seed := range uint64(32) {
		e := newTestEnv(t, Options{Rand: newSeeded(seed)})
		code := e.room(t, "A", "B", "C")

		e.m.StartGame("A")
		e.m.SetVoteDuration("A", 10)
		e.m.StartVote("A")

		e.m.CastVote("A", "B")
		e.m.CastVote("B", "C")
		e.m.CastVote("C", "B")

		ended, ok := lastOf[VoteEndedMessage](e.rec, "A")
		if !ok || !slices.Equal(ended.WinningTargetIDs, []PlayerID{"B"}) {
			t.Fatalf("seed %d: voteEnded = %+v, want B winning", seed, ended)
		}

		if err := e.m.FinalizeRound("A"); err != nil {
			t.Fatal(err)
		}

		impostors := e.impostors("A", "B", "C")
		if len(impostors) != 1 {
			t.Fatalf("seed %d: impostors = %v, want exactly one", seed, impostors)
		}
		impostor := impostors[0]

		want := map[PlayerID]int{"A": 0, "B": 0, "C": 0}
		if impostor == "B" {
			sawVillagersWin = true
			want["A"], want["C"] = 1, 1
		} else {
			sawImpostorsWin = true
			want[impostor] = 1
		}

		got := e.points(t, code)
		for p, n := range want {
			if got[p] != n {
				t.Errorf("seed %d (impostor %s): %s has %d points, want %d", seed, impostor, p, got[p], n)
			}
		}

		update, _ := lastOf[ScoreUpdatedMessage](e.rec, "C")
		if update.VillagersWin != (impostor == "B") {
			t.Errorf("seed %d: villagersWin = %v with impostor %s", seed, update.VillagersWin, impostor)
		}
	}

	if !sawVillagersWin || !sawImpostorsWin {
		t.Errorf("seeds covered villagers win %v, impostors win %v", sawVillagersWin, sawImpostorsWin)
	}
}

func TestFinalizeRound_InconclusiveFavorsImpostors(t *testing.T) {
	players := []PlayerID{"a", "b", "c", "d"}

	for _, ballots := range []map[PlayerID]PlayerID{
		{},
		{"a": "b", "b": "a"},
	} {
		e, code := voting(t, Options{}, players...)

		for voter, target := range ballots {
			e.m.CastVote(voter, target)
		}
		e.m.EndVote("a")

		if err := e.m.FinalizeRound("a"); err != nil {
			t.Fatal(err)
		}

		impostors := e.impostors(players...)
		got := e.points(t, code)
		for _, p := range players {
			want := 0
			if slices.Contains(impostors, p) {
				want = 1
			}
			if got[p] != want {
				t.Errorf("ballots %v: %s has %d points, want %d", ballots, p, got[p], want)
			}
		}

		update, _ := lastOf[ScoreUpdatedMessage](e.rec, "a")
		if update.WinningSide != SideImpostors {
			t.Errorf("ballots %v: winningSide = %q, want impostors", ballots, update.WinningSide)
		}
	}
}

func TestFinalizeRound_OnlyOnce(t *testing.T) {
	e, code := voting(t, Options{}, "a", "b", "c")
	e.m.EndVote("a")

	if err := e.m.FinalizeRound("a"); err != nil {
		t.Fatal(err)
	}
	first := e.points(t, code)

	if err := e.m.FinalizeRound("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second finalize err = %v, want ErrInvalidState", err)
	}
	if second := e.points(t, code); !maps.Equal(first, second) {
		t.Errorf("points changed from %v to %v", first, second)
	}
	if got := len(messagesOf[ScoreUpdatedMessage](e.rec, "b")); got != 1 {
		t.Errorf("got %d scoreUpdated messages, want 1", got)
	}
}

func TestFinalizeRound_Preconditions(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.room(t, "a", "b", "c")

	if err := e.m.FinalizeRound("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("before any round err = %v, want ErrInvalidState", err)
	}

	e.m.StartGame("a")
	if err := e.m.FinalizeRound("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("before any vote err = %v, want ErrInvalidState", err)
	}

	e.m.StartVote("a")
	if err := e.m.FinalizeRound("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("during vote err = %v, want ErrInvalidState", err)
	}

	e.m.EndVote("a")
	if err := e.m.FinalizeRound("b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-host err = %v, want ErrUnauthorized", err)
	}
}

func TestFinalizeRound_SkipsDepartedAndLateMembers(t *testing.T) {
	players := []PlayerID{"a", "b", "c", "d"}
	e, code := voting(t, Options{}, players...)
	e.m.EndVote("a")

	// no ballots, so the lone impostor wins, then walks out
	gone := e.impostors(players...)[0]
	e.m.LeaveRoom(gone)

	e.connect("late")
	e.m.JoinRoom("late", code, "late")

	state, _ := e.m.Room(code)
	if err := e.m.FinalizeRound(state.HostID); err != nil {
		t.Fatal(err)
	}

	got := e.points(t, code)
	if _, ok := got[gone]; ok {
		t.Errorf("%s left but still has a score", gone)
	}
	for p, n := range got {
		if n != 0 {
			t.Errorf("%s has %d points, want 0 since the only impostor left", p, n)
		}
	}
}

func TestFinalizeRound_ReturningPlayerNotScored(t *testing.T) {
	players := []PlayerID{"a", "b", "c", "d"}
	e, code := voting(t, Options{}, players...)
	e.m.EndVote("a")

	// impostors win an empty vote; one of them leaves and comes back
	back := e.impostors(players...)[0]
	e.m.LeaveRoom(back)
	if _, err := e.m.JoinRoom(back, code, string(back)); err != nil {
		t.Fatal(err)
	}

	state, _ := e.m.Room(code)
	if err := e.m.FinalizeRound(state.HostID); err != nil {
		t.Fatal(err)
	}

	if n := e.points(t, code)[back]; n != 0 {
		t.Errorf("%s has %d points, want 0 after leaving mid-round", back, n)
	}
}

func TestFinalizeRound_ScoresAccumulate(t *testing.T) {
	e := newTestEnv(t, Options{})
	code := e.room(t, "a", "b", "c")

	total := 0
	for range 3 {
		e.m.StartGame("a")
		e.m.StartVote("a")
		e.m.EndVote("a")
		e.m.FinalizeRound("a")
		total++
	}

	sum := 0
	for _, n := range e.points(t, code) {
		sum += n
	}
	if sum != total {
		t.Errorf("points sum to %d after %d impostor wins with one impostor, want %d", sum, total, total)
	}

	state, _ := e.m.Room(code)
	if state.RoundNumber != 3 {
		t.Errorf("RoundNumber = %d, want 3", state.RoundNumber)
	}
}

func TestFinalizeRound_Publishes(t *testing.T) {
	pub := &capture{}
	e, code := voting(t, Options{Publisher: pub}, "a", "b", "c")
	e.m.EndVote("a")
	e.m.FinalizeRound("a")

	events := pub.of("round.finished")
	if len(events) != 1 {
		t.Fatalf("got %d round.finished events, want 1", len(events))
	}
	ev := events[0].(RoundFinished)
	if ev.Code != code || ev.Round != 1 || ev.WinningSide != SideImpostors || len(ev.Impostors) != 1 {
		t.Errorf("event = %+v", ev)
	}

	e.m.LeaveRoom("a")
	e.m.LeaveRoom("b")
	e.m.LeaveRoom("c")
	if got := len(pub.of("room.closed")); got != 1 {
		t.Errorf("got %d room.closed events, want 1", got)
	}
}

func TestReveal(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.room(t, "a", "b", "c", "d")
	e.m.SetImpostorCount("a", 2)

	if err := e.m.Reveal("a"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("before round err = %v, want ErrInvalidState", err)
	}

	e.m.StartGame("a")
	if err := e.m.Reveal("b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-host err = %v, want ErrUnauthorized", err)
	}
	if err := e.m.Reveal("a"); err != nil {
		t.Fatal(err)
	}

	want := e.impostors("a", "b", "c", "d")
	slices.Sort(want)

	for _, p := range []PlayerID{"a", "b", "c", "d"} {
		msg, ok := lastOf[RevealMessage](e.rec, p)
		if !ok {
			t.Fatalf("%s got no reveal", p)
		}
		got := slices.Clone(msg.ImpostorIDs)
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Errorf("%s: impostors = %v, want %v", p, got, want)
		}
		if len(msg.ImpostorNames) != 2 || msg.Word == "" || msg.Word == ImpostorRole {
			t.Errorf("%s: reveal = %+v", p, msg)
		}
	}
}
