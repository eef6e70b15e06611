package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Stream_AccumulatesDeltas(t *testing.T) {
	server := sseServer(t, []string{deltaJSON("ab"), deltaJSON("cd")})
	t.Cleanup(server.Close)

	tr := newTransport(5 * time.Second)
	ch, err := tr.stream(context.Background(), testBackend(server.URL), "test-model", []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)

	var got string
	for d := range ch {
		require.Nil(t, d.err)
		got += d.content
	}
	assert.Equal(t, "abcd", got)
}

func TestTransport_Stream_HTTPErrorBeforeStreamStarts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"nope"}}`)
	}))
	t.Cleanup(server.Close)

	tr := newTransport(5 * time.Second)
	_, err := tr.stream(context.Background(), testBackend(server.URL), "test-model", []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrPermissionDenied, llmErr.Code)
}

func TestTransport_Stream_ContextCanceledStopsEarly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", deltaJSON("first"))
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(200 * time.Millisecond)
		fmt.Fprintf(w, "data: %s\n\n", deltaJSON("second"))
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	tr := newTransport(5 * time.Second)
	ch, err := tr.stream(ctx, testBackend(server.URL), "test-model", []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "first", first.content)
	cancel()

	// Draining should terminate once the context is canceled, without
	// requiring the server to send [DONE].
	for range ch {
	}
}

func TestBackend_ValidateModel(t *testing.T) {
	b := testBackend("http://unused")
	require.NoError(t, b.validateModel("request", "test-model"))
	require.Error(t, b.validateModel("request", "unknown-model"))
}
