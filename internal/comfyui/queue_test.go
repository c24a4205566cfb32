package comfyui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "comfy-bridge/internal/errors"
)

const runningQueue = `{
	"queue_running": [[7, "abc123", {"9": {}}, {"client_id": "c"}, ["9", "12", "15"]]],
	"queue_pending": [[8, "def456", {}, {}, ["9"]]]
}`

func TestQueueSnapshotDecoding(t *testing.T) {
	var queue QueueResponse
	require.NoError(t, json.Unmarshal([]byte(runningQueue), &queue))

	snapshot := QueueSnapshot{Running: queue.Running, Pending: queue.Pending}
	assert.False(t, snapshot.CacheHit())
	assert.Equal(t, 7, snapshot.Running[0].Number)
	assert.Equal(t, 3, snapshot.ImageCount("abc123"))
	assert.Equal(t, 1, snapshot.ImageCount("def456"))
	assert.Equal(t, 3, snapshot.ImageCount("unknown"), "falls back to the running entry")
}

func TestQueueSnapshotEmptyRunningIsCacheHit(t *testing.T) {
	var queue QueueResponse
	require.NoError(t, json.Unmarshal([]byte(`{"queue_running":[],"queue_pending":[]}`), &queue))

	snapshot := QueueSnapshot{Running: queue.Running, Pending: queue.Pending}
	assert.True(t, snapshot.CacheHit())
	assert.Equal(t, 0, snapshot.ImageCount("abc123"))
}

func TestQueueEntryToleratesShortRows(t *testing.T) {
	var entry QueueEntry
	require.NoError(t, json.Unmarshal([]byte(`[1, "p"]`), &entry))
	assert.Equal(t, "p", entry.PromptID)
	assert.Empty(t, entry.Outputs)

	require.Error(t, json.Unmarshal([]byte(`{"not":"a row"}`), &entry))
}

func newInspectorServer(t *testing.T, queue, history string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/queue":
			_, _ = w.Write([]byte(queue))
		case "/history/abc123":
			_, _ = w.Write([]byte(history))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestInspectorQueueQueries(t *testing.T) {
	server := newInspectorServer(t, runningQueue, `{}`)
	defer server.Close()

	client := testClient(t, server.URL)
	inspector := NewInspector(client, "/proxy/image", client.logger)

	hit, err := inspector.IsCacheHit(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)

	count, err := inspector.ExpectedImageCount(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestResolveOutputs(t *testing.T) {
	history := `{"abc123":{"outputs":{
		"9":{"images":[{"filename":"x.png","subfolder":"","type":"output"}]},
		"12":{"images":[{"filename":"a b.png","subfolder":"batch/1","type":"temp"},{"filename":"c.png","subfolder":"","type":"output"}]},
		"20":{"text":["not an image"]}
	},"status":{"status_str":"success","completed":true}}}`
	server := newInspectorServer(t, runningQueue, history)
	defer server.Close()

	client := testClient(t, server.URL)
	inspector := NewInspector(client, "/proxy/image", client.logger)

	outputs, err := inspector.ResolveOutputs(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"9": {"/proxy/image?filename=x.png&subfolder=&type=output"},
		"12": {
			"/proxy/image?filename=a+b.png&subfolder=batch%2F1&type=temp",
			"/proxy/image?filename=c.png&subfolder=&type=output",
		},
	}, outputs)

	again, err := inspector.ResolveOutputs(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, outputs, again)
}

func TestResolveOutputsMissingHistoryEntry(t *testing.T) {
	server := newInspectorServer(t, runningQueue, `{}`)
	defer server.Close()

	client := testClient(t, server.URL)
	outputs, err := NewInspector(client, "/proxy/image", client.logger).ResolveOutputs(context.Background(), "abc123")
	require.NoError(t, err)
	assert.NotNil(t, outputs)
	assert.Empty(t, outputs)
}

func TestInspectorUnreachable(t *testing.T) {
	client := testClient(t, "http://"+closedAddr(t))
	_, err := NewInspector(client, "/proxy/image", client.logger).Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnreachable))
}
