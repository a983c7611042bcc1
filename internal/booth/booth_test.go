package booth

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/internal/acl"
	"github.com/u-wave/u-wave-core-sub000/internal/playlist"
	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/lock"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
	"github.com/u-wave/u-wave-core-sub000/pkg/redis"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// pending returns the timers that have not been stopped.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

type fakePlaylists struct {
	mu     sync.Mutex
	owners map[string]string               // playlist ID -> user ID
	items  map[string][]*models.PlaylistItem // playlist ID -> items
	active map[string]string               // user ID -> playlist ID
}

func newFakePlaylists() *fakePlaylists {
	return &fakePlaylists{
		owners: map[string]string{},
		items:  map[string][]*models.PlaylistItem{},
		active: map[string]string{},
	}
}

// give creates an active playlist for userID with n tracks of the given length.
func (p *fakePlaylists) give(userID string, n int, seconds int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "pl-" + userID
	p.owners[id] = userID
	p.active[userID] = id
	for i := 0; i < n; i++ {
		src := fmt.Sprintf("%s-%d", userID, i)
		p.items[id] = append(p.items[id], &models.PlaylistItem{
			ID:         "item-" + src,
			PlaylistID: id,
			Media:      models.Media{SourceType: "youtube", SourceID: src},
			Artist:     userID,
			Title:      src,
			End:        seconds,
		})
	}
	return id
}

func (p *fakePlaylists) FirstTrack(_ context.Context, userID string) (*playlist.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.active[userID]
	if !ok || len(p.items[id]) == 0 {
		return nil, errs.ErrEmptyPlaylist
	}
	return &playlist.Track{
		Playlist: &models.Playlist{ID: id, UserID: userID},
		Item:     p.items[id][0],
	}, nil
}

func (p *fakePlaylists) CycleFirstTrack(_ context.Context, playlistID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.items[playlistID]
	if len(items) > 1 {
		p.items[playlistID] = append(items[1:], items[0])
	}
	return nil
}

func (p *fakePlaylists) AppendTrack(_ context.Context, userID, playlistID string, snap models.MediaSnapshot) (*models.PlaylistItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owners[playlistID] != userID {
		return nil, errs.ErrPlaylistNotFound
	}
	item := &models.PlaylistItem{
		ID:         fmt.Sprintf("fav-%d", len(p.items[playlistID])),
		PlaylistID: playlistID,
		Media:      models.Media{SourceType: snap.SourceType, SourceID: snap.SourceID},
		Artist:     snap.Artist,
		Title:      snap.Title,
		Start:      snap.Start,
		End:        snap.End,
	}
	p.items[playlistID] = append(p.items[playlistID], item)
	return item, nil
}

func (p *fakePlaylists) sourceIDs(playlistID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, item := range p.items[playlistID] {
		out = append(out, item.Media.SourceID)
	}
	return out
}

type fakeHistory struct {
	mu        sync.Mutex
	entries   map[string]*models.HistoryEntry
	stats     map[string]models.VoteStats
	favorites map[string][]string
	// failStats makes SaveStats fail when set.
	failStats error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		entries:   map[string]*models.HistoryEntry{},
		stats:     map[string]models.VoteStats{},
		favorites: map[string][]string{},
	}
}

func (h *fakeHistory) CreateHistoryEntry(_ context.Context, entry *models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[entry.ID] = entry
	return nil
}

func (h *fakeHistory) GetHistoryEntry(_ context.Context, id string) (*models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[id]
	if !ok {
		return nil, errs.ErrHistoryEntryNotFound
	}
	return entry, nil
}

func (h *fakeHistory) SaveStats(_ context.Context, historyID string, stats models.VoteStats) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failStats != nil {
		return h.failStats
	}
	h.stats[historyID] = stats
	return nil
}

func (h *fakeHistory) MarkFavorite(_ context.Context, historyID, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.favorites[historyID] = append(h.favorites[historyID], userID)
	return nil
}

// fakeUsers knows every user; roles default to "user".
type fakeUsers map[string][]string

func (u fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	roles, ok := u[id]
	if !ok {
		roles = []string{"user"}
	}
	return &models.User{ID: id, Roles: roles}, nil
}

type fakeSettings struct {
	settings models.WaitlistSettings
}

func (s *fakeSettings) WaitlistSettings(context.Context) (models.WaitlistSettings, error) {
	return s.settings, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(name events.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name() == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name events.Name) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name() == name {
			return r.events[i]
		}
	}
	return nil
}

type testBooth struct {
	*Booth
	state     *redis.RoomState
	locker    *lock.Locker
	mr        *miniredis.Miniredis
	clock     *fakeClock
	playlists *fakePlaylists
	history   *fakeHistory
	users     fakeUsers
	settings  *fakeSettings
	events    *recorder
}

func newTestBooth(t *testing.T) *testBooth {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tb := &testBooth{
		state:     redis.NewRoomState(client),
		locker:    lock.NewLocker(client),
		mr:        mr,
		clock:     &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		playlists: newFakePlaylists(),
		history:   newFakeHistory(),
		users:     fakeUsers{"mod": {"moderator"}, "manager": {"manager"}},
		settings:  &fakeSettings{settings: models.DefaultWaitlistSettings()},
		events:    &recorder{},
	}
	tb.Booth = New(tb.deps(tb.state), zerolog.Nop())
	return tb
}

func (tb *testBooth) deps(state State) Deps {
	return Deps{
		State:     state,
		Locker:    tb.locker,
		Playlists: tb.playlists,
		History:   tb.history,
		Users:     tb.users,
		ACL:       acl.New(acl.DefaultRoles()),
		Settings:  tb.settings,
		Publisher: tb.events,
		Clock:     tb.clock,
	}
}

// withState rebuilds the booth around state, keeping every other fake.
func (tb *testBooth) withState(state State) {
	tb.Booth = New(tb.deps(state), zerolog.Nop())
}

// joinOnCycle adds joiners to the waitlist right before the first waitlist
// cycle, as if they joined from another process mid-advance.
type joinOnCycle struct {
	*redis.RoomState
	joiners []string
	done    bool
}

func (s *joinOnCycle) CycleWaitlist(ctx context.Context, consumed, requeue string) ([]string, error) {
	if !s.done {
		s.done = true
		for _, id := range s.joiners {
			if _, err := s.AddToWaitlist(ctx, id, -1); err != nil {
				return nil, err
			}
		}
	}
	return s.RoomState.CycleWaitlist(ctx, consumed, requeue)
}

func (tb *testBooth) join(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := tb.state.AddToWaitlist(context.Background(), id, -1); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
}

func (tb *testBooth) waitlist(t *testing.T) []string {
	t.Helper()
	ids, err := tb.state.WaitlistIDs(context.Background())
	if err != nil {
		t.Fatalf("WaitlistIDs failed: %v", err)
	}
	return ids
}

func (tb *testBooth) mustAdvance(t *testing.T, opts AdvanceOptions) *models.CurrentPlay {
	t.Helper()
	play, err := tb.Advance(context.Background(), opts)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	return play
}

func assertWaitlist(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected waitlist %v, got %v", want, got)
	}
}
