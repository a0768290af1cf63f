package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoDevice answers every text frame with a binary frame
func echoDevice(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTerminal_SendsLinesWithCRLF(t *testing.T) {
	srv := echoDevice(t)
	out := &syncBuffer{}

	term, err := DialTerminal(context.Background(), wsURL(srv), out)
	require.NoError(t, err)

	err = term.Run(context.Background(), strings.NewReader("STATUS\nID\n"))
	require.NoError(t, err)

	assert.Equal(t, "echo:STATUS\r\necho:ID\r\n", out.String())
}

func TestTerminal_ServerFaultClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.BinaryMessage, []byte("partial"))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "serial port fault"))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	out := &syncBuffer{}
	term, err := DialTerminal(context.Background(), wsURL(srv), out)
	require.NoError(t, err)

	in, _ := io.Pipe()
	err = term.Run(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial port fault")
	assert.Contains(t, err.Error(), "1011")
	assert.Equal(t, "partial", out.String())
}

func TestTerminal_ContextCancel(t *testing.T) {
	srv := echoDevice(t)

	term, err := DialTerminal(context.Background(), wsURL(srv), io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	in, _ := io.Pipe()

	done := make(chan error, 1)
	go func() { done <- term.Run(ctx, in) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDialTerminal_RefusedUpgrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "Connection not found",
			"error":   map[string]string{"code": "NOT_FOUND", "details": "connection \"ghost\" not found"},
		})
	}))
	defer srv.Close()

	_, err := DialTerminal(context.Background(), wsURL(srv), io.Discard)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Connection not found", apiErr.Message)
}
