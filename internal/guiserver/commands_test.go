package guiserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
)

type fakeLauncher struct {
	launched []int64
	killed   []int64
	fail     apperrors.Error
}

func (f *fakeLauncher) Launch(_ context.Context, workEnvID, _ int64) apperrors.Error {
	if f.fail != nil {
		return f.fail
	}
	f.launched = append(f.launched, workEnvID)
	return nil
}

func (f *fakeLauncher) Kill(workEnvID int64) bool {
	f.killed = append(f.killed, workEnvID)
	return workEnvID == 7
}

func (f *fakeLauncher) Running() []int64 { return f.launched }

type fakeTasks struct {
	names     []string
	cancelled []string
}

func (f *fakeTasks) Submit(name string, command, _ []string, _ string) (string, error) {
	if len(command) == 0 {
		return "", assert.AnError
	}
	f.names = append(f.names, name)
	return "task-1", nil
}

func (f *fakeTasks) Cancel(id string) bool {
	f.cancelled = append(f.cancelled, id)
	return id == "task-1"
}

func (f *fakeTasks) ReadLog(id string) ([]byte, error) {
	if id != "task-1" {
		return nil, assert.AnError
	}
	return []byte("out| hello\n"), nil
}

func commandServer(t *testing.T, launcher *fakeLauncher, tasks *fakeTasks) *httptest.Server {
	t.Helper()
	bus := NewBus(time.Second)
	t.Cleanup(bus.Shutdown)
	s := NewServer(bus, "127.0.0.1:0")
	s.MountCommands(launcher, tasks)
	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)
	return ts
}

func TestLaunchEndpoint(t *testing.T) {
	launcher := &fakeLauncher{}
	ts := commandServer(t, launcher, &fakeTasks{})

	resp, err := http.Post(ts.URL+"/api/launch", "application/json",
		strings.NewReader(`{"work_env_id": 12, "version_id": 3}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{12}, launcher.launched)
}

func TestLaunchConflict(t *testing.T) {
	launcher := &fakeLauncher{fail: apperrors.New("already running")}
	ts := commandServer(t, launcher, &fakeTasks{})

	resp, err := http.Post(ts.URL+"/api/launch", "application/json",
		strings.NewReader(`{"work_env_id": 12}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestKillEndpoint(t *testing.T) {
	launcher := &fakeLauncher{}
	ts := commandServer(t, launcher, &fakeTasks{})

	resp, err := http.Post(ts.URL+"/api/launch/7/kill", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/launch/8/kill", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubtaskEndpoints(t *testing.T) {
	tasks := &fakeTasks{}
	ts := commandServer(t, &fakeLauncher{}, tasks)

	resp, err := http.Post(ts.URL+"/api/subtasks", "application/json",
		strings.NewReader(`{"name": "proxy encode", "command": ["ffmpeg", "-i", "in.mov"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"proxy encode"}, tasks.names)

	resp, err = http.Post(ts.URL+"/api/subtasks/task-1/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"task-1"}, tasks.cancelled)

	resp, err = http.Get(ts.URL + "/api/subtasks/task-1/log")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
