package waitlist

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/u-wave/u-wave-core-sub000/internal/acl"
	"github.com/u-wave/u-wave-core-sub000/internal/booth"
	"github.com/u-wave/u-wave-core-sub000/internal/config"
	"github.com/u-wave/u-wave-core-sub000/internal/playlist"
	"github.com/u-wave/u-wave-core-sub000/pkg/database"
	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/lock"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
	"github.com/u-wave/u-wave-core-sub000/pkg/redis"
)

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

func (r *recorder) names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Name
	for _, ev := range r.events {
		out = append(out, ev.Name())
	}
	return out
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

type testEnv struct {
	*Service
	booth     *booth.Booth
	db        *database.DB
	playlists *playlist.Service
	events    *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db, err := database.Open(database.Options{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "uwave.db"),
		LogLevel: logger.Silent,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	state := redis.NewRoomState(client)
	playlists := playlist.NewService(db, zerolog.Nop())
	settings := config.NewStore(db)
	rules := acl.New(acl.DefaultRoles())
	rec := &recorder{}

	b := booth.New(booth.Deps{
		State:     state,
		Locker:    lock.NewLocker(client),
		Playlists: playlists,
		History:   db,
		Users:     db,
		ACL:       rules,
		Settings:  settings,
		Publisher: rec,
	}, zerolog.Nop())
	t.Cleanup(b.Stop)

	svc := NewService(Deps{
		State:     state,
		Booth:     b,
		Playlists: playlists,
		Users:     db,
		ACL:       rules,
		Settings:  settings,
		Publisher: rec,
	}, zerolog.Nop())

	return &testEnv{Service: svc, booth: b, db: db, playlists: playlists, events: rec}
}

// user creates a user with the role and an active playlist of n tracks.
func (e *testEnv) user(t *testing.T, id, role string, n int) {
	t.Helper()
	ctx := context.Background()
	if err := e.db.CreateUser(ctx, &models.User{ID: id, Username: id, Roles: []string{role}}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if n == 0 {
		return
	}
	pl, err := e.playlists.Create(ctx, id, "default")
	if err != nil {
		t.Fatalf("Create playlist failed: %v", err)
	}
	for i := 0; i < n; i++ {
		snap := models.MediaSnapshot{
			Artist:     id,
			Title:      "track",
			End:        120,
			SourceType: "youtube",
			SourceID:   id + string(rune('a'+i)),
		}
		if _, err := e.playlists.AppendTrack(ctx, id, pl.ID, snap); err != nil {
			t.Fatalf("AppendTrack failed: %v", err)
		}
	}
}

func (e *testEnv) assertWaitlist(t *testing.T, want ...string) {
	t.Helper()
	got, err := e.UserIDs(context.Background())
	if err != nil {
		t.Fatalf("UserIDs failed: %v", err)
	}
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected waitlist %v, got %v", want, got)
	}
}

func TestAddUser_FillsEmptyBooth(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "u", "user", 1)

	if err := e.AddUser(ctx, "u", AddOptions{}); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	play, err := e.booth.CurrentEntry(ctx)
	if err != nil {
		t.Fatalf("CurrentEntry failed: %v", err)
	}
	if play == nil || play.UserID != "u" {
		t.Fatalf("expected u to play, got %+v", play)
	}
	e.assertWaitlist(t)

	names := e.events.names()
	if len(names) == 0 || names[0] != events.NameWaitlistJoin {
		t.Errorf("expected waitlist:join first, got %v", names)
	}
}

func TestAddUser_Errors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "dj", "user", 1)
	e.user(t, "w", "user", 1)
	e.user(t, "empty", "user", 0)

	if err := e.AddUser(ctx, "dj", AddOptions{}); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	if err := e.AddUser(ctx, "w", AddOptions{}); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	tests := []struct {
		name   string
		userID string
		want   error
	}{
		{"current dj", "dj", errs.ErrAlreadyInWaitlist},
		{"already waiting", "w", errs.ErrAlreadyInWaitlist},
		{"empty playlist", "empty", errs.ErrEmptyPlaylist},
		{"unknown user", "ghost", errs.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.AddUser(ctx, tt.userID, AddOptions{}); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	e.assertWaitlist(t, "w")
}

func TestAddUser_Locked(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "mod", "moderator", 1)
	e.user(t, "a", "user", 1)
	e.user(t, "b", "user", 1)

	if err := e.Lock(ctx, "a"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := e.Lock(ctx, "mod"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	ev, ok := e.events.last(events.NameWaitlistLock).(events.WaitlistLock)
	if !ok || !ev.Locked || ev.ModeratorID != "mod" {
		t.Errorf("unexpected waitlist:lock %+v", ev)
	}

	if err := e.AddUser(ctx, "a", AddOptions{}); !errors.Is(err, errs.ErrWaitlistLocked) {
		t.Fatalf("expected ErrWaitlistLocked, got %v", err)
	}
	// Moderators bypass the lock, for themselves and for others.
	if err := e.AddUser(ctx, "mod", AddOptions{}); err != nil {
		t.Fatalf("moderator join failed: %v", err)
	}
	if err := e.AddUser(ctx, "a", AddOptions{ModeratorID: "mod"}); err != nil {
		t.Fatalf("moderator add failed: %v", err)
	}
	add := e.events.last(events.NameWaitlistAdd).(events.WaitlistAdd)
	if add.UserID != "a" || add.ModeratorID != "mod" || add.Position != 0 {
		t.Errorf("unexpected waitlist:add %+v", add)
	}

	if err := e.Unlock(ctx, "mod"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if locked, _ := e.IsLocked(ctx); locked {
		t.Error("expected waitlist to be unlocked")
	}
	if err := e.AddUser(ctx, "b", AddOptions{}); err != nil {
		t.Fatalf("AddUser after unlock failed: %v", err)
	}
	e.assertWaitlist(t, "a", "b")
}

func TestAddUser_AtPosition(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "mod", "moderator", 1)
	for _, id := range []string{"a", "b", "c"} {
		e.user(t, id, "user", 1)
	}
	for _, id := range []string{"mod", "a", "b"} {
		if err := e.AddUser(ctx, id, AddOptions{}); err != nil {
			t.Fatalf("AddUser %s failed: %v", id, err)
		}
	}

	position := 1
	if err := e.AddUser(ctx, "c", AddOptions{ModeratorID: "mod", Position: &position}); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	e.assertWaitlist(t, "a", "c", "b")

	if err := e.AddUser(ctx, "c", AddOptions{ModeratorID: "a"}); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestMoveUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "mod", "moderator", 1)
	for _, id := range []string{"a", "b", "c"} {
		e.user(t, id, "user", 1)
		if err := e.AddUser(ctx, id, AddOptions{}); err != nil {
			t.Fatalf("AddUser %s failed: %v", id, err)
		}
	}
	// a plays, b and c wait.

	if err := e.MoveUser(ctx, "c", 0, "b"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := e.MoveUser(ctx, "a", 0, "mod"); !errors.Is(err, errs.ErrUserIsPlaying) {
		t.Fatalf("expected ErrUserIsPlaying, got %v", err)
	}
	if err := e.MoveUser(ctx, "mod", 0, "mod"); !errors.Is(err, errs.ErrUserNotInWaitlist) {
		t.Fatalf("expected ErrUserNotInWaitlist, got %v", err)
	}

	if err := e.MoveUser(ctx, "c", 0, "mod"); err != nil {
		t.Fatalf("MoveUser failed: %v", err)
	}
	e.assertWaitlist(t, "c", "b")
	ev := e.events.last(events.NameWaitlistMove).(events.WaitlistMove)
	if ev.UserID != "c" || ev.Position != 0 || ev.ModeratorID != "mod" {
		t.Errorf("unexpected waitlist:move %+v", ev)
	}
}

func TestRemoveUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "mod", "moderator", 1)
	for _, id := range []string{"a", "b", "c"} {
		e.user(t, id, "user", 1)
		if err := e.AddUser(ctx, id, AddOptions{}); err != nil {
			t.Fatalf("AddUser %s failed: %v", id, err)
		}
	}

	if err := e.RemoveUser(ctx, "c", "b"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if err := e.RemoveUser(ctx, "b", "b"); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if _, ok := e.events.last(events.NameWaitlistLeave).(events.WaitlistLeave); !ok {
		t.Error("expected waitlist:leave")
	}

	if err := e.RemoveUser(ctx, "c", "mod"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	ev := e.events.last(events.NameWaitlistRemove).(events.WaitlistRemove)
	if ev.UserID != "c" || ev.ModeratorID != "mod" {
		t.Errorf("unexpected waitlist:remove %+v", ev)
	}
	e.assertWaitlist(t)

	if err := e.RemoveUser(ctx, "c", "c"); !errors.Is(err, errs.ErrUserNotInWaitlist) {
		t.Errorf("expected ErrUserNotInWaitlist, got %v", err)
	}
}

func TestClear(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "mod", "moderator", 0)
	e.user(t, "boss", "manager", 0)
	for _, id := range []string{"a", "b"} {
		e.user(t, id, "user", 1)
		if err := e.AddUser(ctx, id, AddOptions{}); err != nil {
			t.Fatalf("AddUser %s failed: %v", id, err)
		}
	}

	if err := e.Clear(ctx, "mod"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := e.Clear(ctx, "boss"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	e.assertWaitlist(t)
	if ev, ok := e.events.last(events.NameWaitlistClear).(events.WaitlistClear); !ok || ev.ModeratorID != "boss" {
		t.Errorf("unexpected waitlist:clear %+v", ev)
	}
}

func TestSetCycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "mod", "moderator", 0)

	if err := e.SetCycle(ctx, "mod", false); err != nil {
		t.Fatalf("SetCycle failed: %v", err)
	}
	if enabled, _ := e.IsCycleEnabled(ctx); enabled {
		t.Error("expected cycle to be disabled")
	}
	ev, ok := e.events.last(events.NameWaitlistCycle).(events.WaitlistCycle)
	if !ok || ev.Cycle || ev.ModeratorID != "mod" {
		t.Errorf("unexpected waitlist:cycle %+v", ev)
	}
	if e.events.last(events.NameWaitlistLock) != nil {
		t.Error("cycle change must not announce a lock change")
	}
}
