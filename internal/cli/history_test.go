package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/history"
	"github.com/roach88/chatsync/internal/store"
)

func newHistoryBackend(t *testing.T, msgs ...chat.Message) *httptest.Server {
	t.Helper()
	blobs, err := store.OpenBlobs(store.BackendSQLite, filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	t.Cleanup(func() { blobs.Close() })

	srv := httptest.NewServer(history.NewServer(blobs))
	t.Cleanup(srv.Close)
	if len(msgs) > 0 {
		require.NoError(t, history.NewClient(srv.URL).Write(context.Background(), msgs))
	}
	return srv
}

func TestHistoryShow_Text(t *testing.T) {
	joinEnv(t)
	srv := newHistoryBackend(t,
		chat.Message{ID: "m1", Text: "hello", SenderID: "alice"},
		chat.Message{ID: "m2", Text: "hi", SenderID: "bob", ReplyTo: &chat.ReplyRef{ID: "m1", Text: "hello", SenderID: "alice"}},
	)

	buf := &bytes.Buffer{}
	cmd := NewHistoryShowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--url", srv.URL})
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "[m1] alice: hello\n"+
		"[m2] bob: hi\n"+
		"    > hello\n"+
		"2 message(s)\n", buf.String())
}

func TestHistoryShow_JSON(t *testing.T) {
	joinEnv(t)
	srv := newHistoryBackend(t, chat.Message{ID: "m1", Text: "hello", SenderID: "alice"})
	t.Setenv("CHATSYNC_HISTORY_URL", srv.URL)

	buf := &bytes.Buffer{}
	cmd := NewHistoryShowCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute(), "url comes from client.history_url")

	var resp struct {
		Status string         `json:"status"`
		Data   []chat.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []chat.Message{{ID: "m1", Text: "hello", SenderID: "alice"}}, resp.Data)
}

func TestHistoryShow_Empty(t *testing.T) {
	joinEnv(t)
	srv := newHistoryBackend(t)

	buf := &bytes.Buffer{}
	cmd := NewHistoryShowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--url", srv.URL})
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "(no messages)")
	assert.Contains(t, buf.String(), "0 message(s)")
}

func TestHistoryShow_NoURL(t *testing.T) {
	joinEnv(t)

	cmd := NewHistoryShowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	cmd.SetContext(context.Background())

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no history server")
}

func TestHistoryShow_ServerError(t *testing.T) {
	joinEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := NewHistoryShowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--url", srv.URL})
	cmd.SetContext(context.Background())

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load history")
}

func TestHistoryServe(t *testing.T) {
	for _, backend := range []string{"sqlite", "pebble"} {
		t.Run(backend, func(t *testing.T) {
			joinEnv(t)
			data := filepath.Join(t.TempDir(), "history")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			addrc := make(chan net.Addr, 1)

			cmd := newHistoryServeCommand(&ServeOptions{
				RootOptions: &RootOptions{Format: "text"},
				onListen:    func(a net.Addr) { addrc <- a },
			})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--listen", "127.0.0.1:0", "--backend", backend, "--data", data})
			cmd.SetContext(ctx)

			errc := make(chan error, 1)
			go func() { errc <- cmd.Execute() }()

			var addr net.Addr
			select {
			case addr = <-addrc:
			case err := <-errc:
				t.Fatalf("serve exited early: %v", err)
			case <-time.After(5 * time.Second):
				t.Fatal("server did not start")
			}
			url := fmt.Sprintf("http://%s", addr)

			client := history.NewClient(url)
			msgs := []chat.Message{{ID: "m1", Text: "kept", SenderID: "alice"}}
			require.NoError(t, client.Write(ctx, msgs))
			got, err := client.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, msgs, got)

			resp, err := http.Get(url + "/metrics")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			cancel()
			select {
			case err := <-errc:
				assert.NoError(t, err)
			case <-time.After(shutdownTimeout + time.Second):
				t.Fatal("server did not shut down")
			}
		})
	}
}

func TestHistoryServe_BadBackend(t *testing.T) {
	joinEnv(t)

	cmd := newHistoryServeCommand(&ServeOptions{RootOptions: &RootOptions{Format: "text"}})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "redis"})
	cmd.SetContext(context.Background())

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
