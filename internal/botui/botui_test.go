package botui

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/driverepo"
	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

type memProvider struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemProvider() *memProvider { return &memProvider{data: make(map[string][]byte)} }

func (p *memProvider) Name() string { return "mem" }
func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return v, ok, nil
}
func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}
func (p *memProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}
func (p *memProvider) ListKeys(context.Context, string) ([]string, error)    { return nil, nil }
func (p *memProvider) BulkSet(context.Context, map[string][]byte, int) error { return nil }
func (p *memProvider) Healthy(context.Context) error                         { return nil }

func newTestFacade(t *testing.T) *kv.Facade {
	t.Helper()
	return kv.New(logging.New("test"), newMemProvider(), nil)
}

type fakeChat struct {
	mu  sync.Mutex
	out []string
}

func (f *fakeChat) SendMessage(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, text)
	return nil
}

func (f *fakeChat) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return ""
	}
	return f.out[len(f.out)-1]
}

type fakeTaskStore struct {
	tasks     map[string]*models.Task
	cancelled []string
	cancelErr error
}

func (s *fakeTaskStore) FindByUserID(_ context.Context, userID string) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) CancelTask(_ context.Context, taskID, _ string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, taskID)
	return nil
}

func TestSessionsStartActiveEndRoundTrip(t *testing.T) {
	sessions := NewSessions(newTestFacade(t))
	ctx := context.Background()

	active, err := sessions.Active(ctx, "u1")
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, sessions.Start(ctx, "u1"))
	active, err = sessions.Active(ctx, "u1")
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, sessions.End(ctx, "u1"))
	active, err = sessions.Active(ctx, "u1")
	require.NoError(t, err)
	require.False(t, active)
}

func TestDriveConfigFlowCompletesAcrossCallbackAndInput(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t)
	sessions := NewSessions(facade)
	drives := driverepo.New(facade)
	chat := &fakeChat{}
	flow := NewDriveConfigFlow(facade, drives, sessions, chat)

	require.NoError(t, flow.Start(ctx, "u1", "chat1"))
	active, err := sessions.Active(ctx, "u1")
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, flow.HandleCallback(ctx, "u1", "drive_s3"))
	require.Contains(t, chat.last(), "name,bucket")

	require.NoError(t, flow.HandleInput(ctx, "u1", "mydrive, mybucket, us-east-1"))
	require.Contains(t, chat.last(), "configured")

	active, err = sessions.Active(ctx, "u1")
	require.NoError(t, err)
	require.False(t, active)

	saved, err := drives.DriveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.DriveTypeS3, saved.Type)
	require.Equal(t, "mybucket", saved.Bucket)
	require.Equal(t, "us-east-1", saved.Region)
}

func TestDriveConfigFlowRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t)
	sessions := NewSessions(facade)
	drives := driverepo.New(facade)
	chat := &fakeChat{}
	flow := NewDriveConfigFlow(facade, drives, sessions, chat)

	require.NoError(t, flow.HandleCallback(ctx, "u1", "drive_azure"))
	require.NoError(t, flow.HandleInput(ctx, "u1", "onlyname"))
	require.Contains(t, chat.last(), "Try again")

	_, err := drives.DriveForUser(ctx, "u1")
	require.Error(t, err)
}

func TestDriveConfigFlowCallbackIgnoresEmptyAckPayload(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t)
	sessions := NewSessions(facade)
	drives := driverepo.New(facade)
	chat := &fakeChat{}
	flow := NewDriveConfigFlow(facade, drives, sessions, chat)

	require.NoError(t, flow.HandleCallback(ctx, "u1", ""))
	require.Empty(t, chat.out)
}

func TestFileBrowserRendersOnlyCompletedTasksPaginated(t *testing.T) {
	store := &fakeTaskStore{tasks: map[string]*models.Task{}}
	for i := 0; i < 12; i++ {
		id := "t" + string(rune('a'+i))
		store.tasks[id] = &models.Task{ID: id, UserID: "u1", FileName: id + ".bin", Status: models.StatusCompleted}
	}
	store.tasks["pending"] = &models.Task{ID: "pending", UserID: "u1", FileName: "nope.bin", Status: models.StatusQueued}

	chat := &fakeChat{}
	browser := NewFileBrowser(store, chat)

	require.NoError(t, browser.RenderFilesPage(context.Background(), "u1", 0))
	require.Contains(t, chat.last(), "page 1")
	require.Contains(t, chat.last(), "next page")

	require.NoError(t, browser.RenderFilesPage(context.Background(), "u1", 1))
	require.Contains(t, chat.last(), "page 2")
	require.NotContains(t, chat.last(), "next page")
}

func TestFileBrowserReportsEmptyWhenNoCompletedTasks(t *testing.T) {
	store := &fakeTaskStore{tasks: map[string]*models.Task{}}
	chat := &fakeChat{}
	browser := NewFileBrowser(store, chat)

	require.NoError(t, browser.RenderFilesPage(context.Background(), "u1", 0))
	require.Contains(t, chat.last(), "No completed transfers")
}

func TestCommandsCancelRequiresTaskID(t *testing.T) {
	chat := &fakeChat{}
	store := &fakeTaskStore{tasks: map[string]*models.Task{}}
	facade := newTestFacade(t)
	sessions := NewSessions(facade)
	drives := driverepo.New(facade)
	flow := NewDriveConfigFlow(facade, drives, sessions, chat)
	browser := NewFileBrowser(store, chat)
	cmds := NewCommands(chat, flow, browser, store, store, drives)

	msg := chatclient.Message{ChatID: "c1", UserID: "u1", Text: "/cancel"}
	require.NoError(t, cmds.HandleCommand(context.Background(), "/cancel", msg))
	require.Contains(t, chat.last(), "Usage")
	require.Empty(t, store.cancelled)

	msg.Text = "/cancel task-123"
	require.NoError(t, cmds.HandleCommand(context.Background(), "/cancel", msg))
	require.Equal(t, []string{"task-123"}, store.cancelled)
	require.Contains(t, chat.last(), "Cancelled")
}

func TestCommandsUnbindDeletesDrive(t *testing.T) {
	chat := &fakeChat{}
	store := &fakeTaskStore{tasks: map[string]*models.Task{}}
	facade := newTestFacade(t)
	sessions := NewSessions(facade)
	drives := driverepo.New(facade)
	require.NoError(t, drives.Save(context.Background(), "u1", &models.Drive{Type: models.DriveTypeS3, Name: "d", Bucket: "b"}))

	flow := NewDriveConfigFlow(facade, drives, sessions, chat)
	browser := NewFileBrowser(store, chat)
	cmds := NewCommands(chat, flow, browser, store, store, drives)

	msg := chatclient.Message{ChatID: "c1", UserID: "u1", Text: "/unbind"}
	require.NoError(t, cmds.HandleCommand(context.Background(), "/unbind", msg))
	require.Contains(t, chat.last(), "unbound")

	_, err := drives.DriveForUser(context.Background(), "u1")
	require.Error(t, err)
}

func TestCommandsStartAndFilesAndStatus(t *testing.T) {
	chat := &fakeChat{}
	store := &fakeTaskStore{tasks: map[string]*models.Task{
		"t1": {ID: "t1", UserID: "u1", FileName: "a.bin", Status: models.StatusDownloading},
	}}
	facade := newTestFacade(t)
	sessions := NewSessions(facade)
	drives := driverepo.New(facade)
	flow := NewDriveConfigFlow(facade, drives, sessions, chat)
	browser := NewFileBrowser(store, chat)
	cmds := NewCommands(chat, flow, browser, store, store, drives)

	msg := chatclient.Message{ChatID: "c1", UserID: "u1"}
	require.NoError(t, cmds.HandleCommand(context.Background(), "/start", msg))
	require.NotEmpty(t, chat.last())

	require.NoError(t, cmds.HandleCommand(context.Background(), "/files", msg))
	require.Contains(t, chat.last(), "No completed transfers")

	require.NoError(t, cmds.HandleCommand(context.Background(), "/status", msg))
	require.Contains(t, chat.last(), "a.bin")
}
