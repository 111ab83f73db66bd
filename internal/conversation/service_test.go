package conversation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/deeptok/internal/db"
	"github.com/RichardoC/deeptok/internal/models"
	"github.com/RichardoC/deeptok/internal/render"
	"github.com/RichardoC/deeptok/internal/responder"
)

type recorder struct {
	mu      sync.Mutex
	views   []render.View
	typing  []bool
	notices []string
}

func (r *recorder) Show(v render.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) Typing(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing = append(r.typing, on)
}

func (r *recorder) Notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
}

func (r *recorder) lastView(t *testing.T) render.View {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.views)
	return r.views[len(r.views)-1]
}

func setup(t *testing.T, delay time.Duration) (*Service, *db.Database, *recorder) {
	t.Helper()
	database := db.New(filepath.Join(t.TempDir(), "chat.db"), nil)
	rec := &recorder{}
	svc := NewService(database, database.Identity(), responder.NewDefault(nil), rec, Config{ReplyDelay: delay}, nil)
	return svc, database, rec
}

func TestSubmitStoresMessageAndReply(t *testing.T) {
	svc, database, rec := setup(t, 50*time.Millisecond)
	ctx := context.Background()

	turn, err := svc.Submit(ctx, "budi", "  Halo DeepTok  ")
	require.NoError(t, err)
	assert.NotEmpty(t, turn.ID)
	assert.Equal(t, int64(1), turn.UserMessageID)

	first := rec.lastView(t)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "Halo DeepTok", first.Items[0].Text)
	assert.Equal(t, "budi", first.Items[0].Sender)

	svc.Wait()
	assert.Zero(t, svc.Pending())

	messages, err := database.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleBot, messages[1].Role)
	assert.Equal(t, "Halo! Ada yang bisa saya bantu?", messages[1].Text)

	last := rec.lastView(t)
	require.Len(t, last.Items, 2)
	assert.Equal(t, render.DefaultAssistant, last.Items[1].Sender)
	assert.Equal(t, int64(2), last.ScrollTo)
	assert.Equal(t, []bool{true, false}, rec.typing)
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	svc, database, rec := setup(t, time.Millisecond)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "budi", " \t\n ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	svc.Wait()

	messages, err := database.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Empty(t, rec.views)
	assert.Empty(t, rec.typing)
}

func TestOverlappingTurnsBothComplete(t *testing.T) {
	svc, database, rec := setup(t, 100*time.Millisecond)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "budi", "halo")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "budi", "bye")
	require.NoError(t, err)
	svc.Wait()

	messages, err := database.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 4)

	ids := map[string]int64{}
	users, bots := 0, 0
	for _, msg := range messages {
		ids[msg.Text] = msg.ID
		if msg.Role == models.RoleUser {
			users++
		} else {
			bots++
		}
	}
	assert.Equal(t, 2, users)
	assert.Equal(t, 2, bots)
	assert.Less(t, ids["halo"], ids["Halo! Ada yang bisa saya bantu?"])
	assert.Less(t, ids["bye"], ids["Sampai jumpa! 😊"])

	// each turn renders twice
	assert.Len(t, rec.views, 4)
	assert.Len(t, rec.lastView(t).Items, 4)
	assert.False(t, rec.typing[len(rec.typing)-1])
}

func TestSubmitStorageUnavailable(t *testing.T) {
	database := db.New(filepath.Join(t.TempDir(), "missing", "chat.db"), nil)
	rec := &recorder{}
	svc := NewService(database, database.Identity(), responder.NewDefault(nil), rec, Config{}, nil)

	_, err := svc.Submit(context.Background(), "budi", "halo")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, db.ErrStorageUnavailable)
	assert.Zero(t, svc.Pending())

	_, err = svc.History(context.Background(), "budi")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type flakyStore struct {
	mu           sync.Mutex
	failures     int
	botFailures  int
	readFailures int
	appends      int
	messages     []models.Message
}

func (f *flakyStore) Append(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if f.failures > 0 {
		f.failures--
		return db.ErrWriteFailed
	}
	if msg.Role == models.RoleBot && f.botFailures > 0 {
		f.botFailures--
		return db.ErrWriteFailed
	}
	msg.ID = int64(len(f.messages) + 1)
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *flakyStore) ReadAll(context.Context) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readFailures > 0 {
		f.readFailures--
		return nil, db.ErrReadFailed
	}
	return append([]models.Message(nil), f.messages...), nil
}

func (f *flakyStore) WipeAll(context.Context) {}

func TestSubmitRetriesWriteOnce(t *testing.T) {
	store := &flakyStore{failures: 1}
	rec := &recorder{}
	svc := NewService(store, nil, responder.NewDefault(nil), rec, Config{ReplyDelay: time.Millisecond}, nil)

	_, err := svc.Submit(context.Background(), "budi", "halo")
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, 3, store.appends)
	assert.Len(t, store.messages, 2)
	assert.Empty(t, rec.notices)
}

func TestSubmitReportsPersistentWriteFailure(t *testing.T) {
	store := &flakyStore{failures: 2}
	rec := &recorder{}
	svc := NewService(store, nil, responder.NewDefault(nil), rec, Config{ReplyDelay: time.Millisecond}, nil)

	_, err := svc.Submit(context.Background(), "budi", "halo")
	assert.ErrorIs(t, err, db.ErrWriteFailed)
	assert.Equal(t, []string{NoticeWriteFailed}, rec.notices)
	assert.Empty(t, rec.views)
	assert.Zero(t, svc.Pending())
}

func TestReplyDroppedAfterPersistentWriteFailure(t *testing.T) {
	store := &flakyStore{botFailures: 2}
	rec := &recorder{}
	svc := NewService(store, nil, responder.NewDefault(nil), rec, Config{ReplyDelay: time.Millisecond}, nil)

	_, err := svc.Submit(context.Background(), "budi", "halo")
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, 3, store.appends)
	require.Len(t, store.messages, 1)
	assert.Equal(t, models.RoleUser, store.messages[0].Role)
	assert.Zero(t, svc.Pending())
	assert.Equal(t, []bool{true, false}, rec.typing)
	assert.Len(t, rec.lastView(t).Items, 1)
}

func TestRenderReportsReadFailure(t *testing.T) {
	store := &flakyStore{readFailures: 2}
	rec := &recorder{}
	svc := NewService(store, nil, responder.NewDefault(nil), rec, Config{ReplyDelay: time.Millisecond}, nil)

	// the message is stored even though the history cannot be shown
	_, err := svc.Submit(context.Background(), "budi", "halo")
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, []string{NoticeReadFailed}, rec.notices)
	require.Len(t, rec.views, 1)
	assert.Len(t, rec.views[0].Items, 2)
	assert.Len(t, store.messages, 2)
}

func TestReplyRenderUsesCurrentName(t *testing.T) {
	svc, _, rec := setup(t, 50*time.Millisecond)
	ctx := context.Background()

	_, err := svc.Login(ctx, "budi")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "budi", "halo")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "sari")
	require.NoError(t, err)
	svc.Wait()

	last := rec.lastView(t)
	require.Len(t, last.Items, 2)
	assert.Equal(t, "sari", last.Items[0].Sender)
}

// slowTyping delays hiding the indicator so a Submit can land while it runs.
type slowTyping struct {
	*recorder
	hiding chan struct{}
	once   sync.Once
}

func (d *slowTyping) Typing(on bool) {
	if !on {
		d.once.Do(func() { close(d.hiding) })
		time.Sleep(50 * time.Millisecond)
	}
	d.recorder.Typing(on)
}

func TestTypingStaysOnWhileReplyPending(t *testing.T) {
	database := db.New(filepath.Join(t.TempDir(), "chat.db"), nil)
	rec := &recorder{}
	display := &slowTyping{recorder: rec, hiding: make(chan struct{})}
	svc := NewService(database, database.Identity(), responder.NewDefault(nil), display, Config{ReplyDelay: 200 * time.Millisecond}, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "budi", "halo")
	require.NoError(t, err)
	<-display.hiding

	_, err = svc.Submit(ctx, "budi", "bye")
	require.NoError(t, err)

	rec.mu.Lock()
	typing := append([]bool(nil), rec.typing...)
	rec.mu.Unlock()
	assert.Equal(t, []bool{true, false, true}, typing)
	assert.Equal(t, 1, svc.Pending())

	svc.Wait()
	assert.Equal(t, []bool{true, false, true, false}, rec.typing)
}

func TestZeroReplyDelayUsesDefault(t *testing.T) {
	svc := NewService(&flakyStore{}, nil, responder.NewDefault(nil), nil, Config{}, nil)
	assert.Equal(t, DefaultReplyDelay, svc.delay)
}

func TestLoginAndChangeName(t *testing.T) {
	svc, _, _ := setup(t, time.Millisecond)
	ctx := context.Background()

	_, err := svc.Login(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyName)

	name, err := svc.Login(ctx, " budi ")
	require.NoError(t, err)
	assert.Equal(t, "budi", name)

	got, ok, err := svc.Identity(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "budi", got)

	require.NoError(t, svc.ChangeName(ctx))
	_, ok, err = svc.Identity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearWipesHistoryAndIdentity(t *testing.T) {
	svc, database, rec := setup(t, time.Millisecond)
	ctx := context.Background()

	_, err := svc.Login(ctx, "budi")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "budi", "terima kasih")
	require.NoError(t, err)
	svc.Wait()

	svc.Clear(ctx)

	messages, err := database.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, messages)
	_, ok, err := svc.Identity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rec.lastView(t).Items)
}
