package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/repository/memory"
	"github.com/navikt/pokerrooms/internal/service"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotifier is a mock for asserting on emitted events
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Broadcast(roomID, event string, payload any) {
	m.Called(roomID, event, payload)
}

func (m *MockNotifier) Close(roomID string) {
	m.Called(roomID)
}

type sentEvent struct {
	roomID  string
	event   string
	payload any
}

// recordingNotifier keeps every event so tests can inspect payloads in order
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	closed []string
}

func (n *recordingNotifier) Broadcast(roomID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{roomID: roomID, event: event, payload: payload})
}

func (n *recordingNotifier) Close(roomID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, roomID)
}

func (n *recordingNotifier) last(t *testing.T) sentEvent {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.events)
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fixedIDs(ids ...string) service.IDGenerator {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id, nil
	}
}

type fixture struct {
	repo     *memory.Repository
	dir      *service.Directory
	coord    *service.Coordinator
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, acceptLateVotes bool, ids ...string) *fixture {
	t.Helper()
	if len(ids) == 0 {
		ids = []string{"ROOM01"}
	}

	f := &fixture{
		repo:     memory.NewRepository(),
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
	}
	f.dir = service.NewDirectory(f.repo,
		service.WithIDGenerator(fixedIDs(ids...)),
		service.WithClock(f.clock.Now),
	)
	f.coord = service.NewCoordinator(f.dir, acceptLateVotes, utils.Component(utils.Discard(), "coordinator"))
	f.coord.RegisterNotifier(f.notifier)
	return f
}

// createRoom makes a room owned by u1 with u1 and u2 joined
func (f *fixture) createRoom(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	id, _, err := f.dir.Create(ctx, "Sprint 12", "u1")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, id, models.Participant{ID: "u1", Name: "Ada"})
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, id, models.Participant{ID: "u2", Name: "Bob"})
	require.NoError(t, err)
	return id
}

func newMemoryRepo() *memory.Repository {
	return memory.NewRepository()
}
