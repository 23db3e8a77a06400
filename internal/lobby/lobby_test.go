package lobby

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/nego/internal/config"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/session"
)

// fakeProxy departs on its first Act unless block is set, in which case Act
// waits for the context.
type fakeProxy struct {
	id    string
	block bool

	mu       sync.Mutex
	flags    model.ConnFlags
	released chan struct{}
	once     sync.Once
}

func newProxy(id string) *fakeProxy {
	return &fakeProxy{id: id, released: make(chan struct{})}
}

func (f *fakeProxy) ID() string                  { return f.id }
func (f *fakeProxy) Observe(model.Message)       {}
func (f *fakeProxy) isReleased() <-chan struct{} { return f.released }

func (f *fakeProxy) Flags() model.ConnFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

func (f *fakeProxy) Act(ctx context.Context, _ time.Duration) (*model.Action, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, model.ErrDeparted
}

func (f *fakeProxy) Release(context.Context, time.Duration) error {
	f.once.Do(func() { close(f.released) })
	return nil
}

type fakeOnboarder struct {
	err error
}

func (o fakeOnboarder) Run(_ context.Context, p session.Proxy, profile *model.Participant) error {
	if o.err != nil {
		return o.err
	}
	profile.AssignValues([]string{"Food", "Water", "Firewood"}, 3, model.Tiers)
	return nil
}

// fakeFinisher records every shut down session.
type fakeFinisher struct {
	done chan *model.SessionRecord
}

func newFinisher() *fakeFinisher {
	return &fakeFinisher{done: make(chan *model.SessionRecord, 8)}
}

func (f *fakeFinisher) Shutdown(ctx context.Context, s *session.Session) (*model.SessionRecord, error) {
	for _, m := range s.Members() {
		m.Proxy.Release(ctx, time.Second)
	}
	rec := s.Record()
	f.done <- rec
	return rec, nil
}

func (f *fakeFinisher) wait(t *testing.T) *model.SessionRecord {
	t.Helper()
	select {
	case rec := <-f.done:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("session was never shut down")
		return nil
	}
}

func newLobby(t *testing.T, onboard Onboarder, fin Finisher, mutate func(*Config)) *Lobby {
	t.Helper()
	cfg := Config{
		Task:           config.DefaultTask(),
		TurnTimeout:    time.Second,
		ReleaseTimeout: time.Second,
		Rand:           rand.New(rand.NewPCG(1, 2)),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l := New(cfg, onboard, fin)
	t.Cleanup(l.Close)
	return l
}

func join(t *testing.T, l *Lobby, p *fakeProxy) {
	t.Helper()
	if err := l.Join(context.Background(), p, model.NewParticipant(p.id, "W-"+p.id, "A-"+p.id)); err != nil {
		t.Fatalf("Join(%s): %v", p.id, err)
	}
}

func waitReleased(t *testing.T, p *fakeProxy) {
	t.Helper()
	select {
	case <-p.isReleased():
	case <-time.After(2 * time.Second):
		t.Fatalf("%s was never released", p.id)
	}
}

func TestJoin_PairsFirstComeFirstServed(t *testing.T) {
	fin := newFinisher()
	l := newLobby(t, fakeOnboarder{}, fin, nil)

	a, b, c := newProxy("a"), newProxy("b"), newProxy("c")
	join(t, l, a)
	if l.Waiting() != 1 {
		t.Fatalf("Waiting() = %d, want 1", l.Waiting())
	}
	join(t, l, b)
	join(t, l, c)

	rec := fin.wait(t)
	ids := []string{rec.Participants[0].ID, rec.Participants[1].ID}
	sort.Strings(ids)
	if ids[0] != "a" || ids[1] != "b" {
		t.Errorf("paired %v, want [a b]", ids)
	}
	if rec.Completed || len(rec.Departed) == 0 {
		t.Errorf("expected an incomplete session with a departure: %+v", rec)
	}
	if l.Waiting() != 1 {
		t.Errorf("c should still be waiting, Waiting() = %d", l.Waiting())
	}
}

func TestJoin_OnboardingDepartureReleases(t *testing.T) {
	l := newLobby(t, fakeOnboarder{err: model.ErrDeparted}, newFinisher(), nil)
	p := newProxy("a")

	err := l.Join(context.Background(), p, model.NewParticipant("a", "W", "A"))
	if !errors.Is(err, model.ErrDeparted) {
		t.Fatalf("expected ErrDeparted, got %v", err)
	}
	waitReleased(t, p)
	if l.Waiting() != 0 {
		t.Errorf("Waiting() = %d, want 0", l.Waiting())
	}
}

func TestEnqueue_DropsDepartedWaiters(t *testing.T) {
	dropped := make(chan string, 1)
	l := newLobby(t, fakeOnboarder{}, newFinisher(), func(cfg *Config) {
		cfg.OnDropped = func(id string) { dropped <- id }
	})

	a := newProxy("a")
	join(t, l, a)
	a.mu.Lock()
	a.flags.Disconnected = true
	a.mu.Unlock()

	join(t, l, newProxy("b"))

	waitReleased(t, a)
	select {
	case id := <-dropped:
		if id != "a" {
			t.Errorf("OnDropped(%q), want a", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDropped was never called")
	}
	if l.Waiting() != 1 {
		t.Errorf("Waiting() = %d, want 1 (only b)", l.Waiting())
	}
	if len(l.Active()) != 0 {
		t.Errorf("no session should start with a departed waiter")
	}
}

func TestHooks(t *testing.T) {
	fin := newFinisher()
	var (
		mu       sync.Mutex
		matched  []string
		finished = make(chan string, 1)
	)
	l := newLobby(t, fakeOnboarder{}, fin, func(cfg *Config) {
		cfg.NewTag = func() (string, error) { return "ns-fixed", nil }
		cfg.OnMatched = func(tag string, ids []string) {
			mu.Lock()
			matched = append(matched, tag)
			matched = append(matched, ids...)
			mu.Unlock()
		}
		cfg.OnFinished = func(rec *model.SessionRecord) { finished <- rec.Tag }
	})

	join(t, l, newProxy("a"))
	join(t, l, newProxy("b"))
	fin.wait(t)

	select {
	case tag := <-finished:
		if tag != "ns-fixed" {
			t.Errorf("finished tag = %q", tag)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinished never called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(matched) != 3 || matched[0] != "ns-fixed" {
		t.Errorf("OnMatched got %v", matched)
	}
}

func TestTagErrorRequeues(t *testing.T) {
	l := newLobby(t, fakeOnboarder{}, newFinisher(), func(cfg *Config) {
		cfg.NewTag = func() (string, error) { return "", errors.New("entropy exhausted") }
	})

	join(t, l, newProxy("a"))
	err := l.Join(context.Background(), newProxy("b"), model.NewParticipant("b", "W", "A"))
	if err == nil {
		t.Fatal("expected tag error")
	}
	if l.Waiting() != 2 {
		t.Errorf("both participants should be requeued, Waiting() = %d", l.Waiting())
	}
}

func TestClose_CancelsSessionsAndReleasesQueue(t *testing.T) {
	fin := newFinisher()
	l := New(Config{
		Task:        config.DefaultTask(),
		TurnTimeout: time.Hour,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, fakeOnboarder{}, fin)

	a, b, c := newProxy("a"), newProxy("b"), newProxy("c")
	a.block, b.block = true, true
	join(t, l, a)
	join(t, l, b)
	join(t, l, c)

	if n := len(l.Active()); n != 1 {
		t.Fatalf("Active() = %d sessions, want 1", n)
	}

	closed := make(chan struct{})
	go func() {
		l.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	fin.wait(t)
	waitReleased(t, a)
	waitReleased(t, b)
	waitReleased(t, c)
	if len(l.Active()) != 0 {
		t.Errorf("Active() should be empty after Close")
	}

	d := newProxy("d")
	if err := l.Enqueue(session.Member{Proxy: d, Profile: model.NewParticipant("d", "W", "A")}); err == nil {
		t.Error("Enqueue after Close should fail")
	}
	waitReleased(t, d)
}
