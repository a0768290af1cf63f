package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	terminalWriteWait = 10 * time.Second
	closeWait         = time.Second
	lineEnding        = "\r\n"
)

// Terminal is an interactive session on a connection's WebSocket stream
type Terminal struct {
	conn *websocket.Conn
	out  io.Writer
}

// DialTerminal opens the WebSocket at wsURL. Bytes received from the device
// are written to out unchanged.
func DialTerminal(ctx context.Context, wsURL string, out io.Writer) (*Terminal, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, handshakeError(resp)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	return &Terminal{conn: conn, out: out}, nil
}

// handshakeError turns a refused upgrade into the server's own error message
func handshakeError(resp *http.Response) error {
	var env envelope[json.RawMessage]
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if resp.Body != nil {
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
			apiErr.Message = env.Message
			if env.Error != nil {
				apiErr.Code = env.Error.Code
				apiErr.Details = env.Error.Details
			}
		}
	}
	return apiErr
}

// Run relays lines read from in to the device, each terminated with CRLF,
// until in is exhausted, ctx is cancelled or the server closes the stream.
// A normal closure from either side returns nil.
func (t *Terminal) Run(ctx context.Context, in io.Reader) error {
	defer t.conn.Close()

	readDone := make(chan error, 1)
	go func() {
		readDone <- t.readLoop()
	}()

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- t.writeLoop(in)
	}()

	select {
	case err := <-readDone:
		return err
	case err := <-inputDone:
		t.close(readDone)
		return err
	case <-ctx.Done():
		t.close(readDone)
		return nil
	}
}

func (t *Terminal) readLoop() error {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("connection closed by server: %s (%d)", closeErr.Text, closeErr.Code)
			}
			return fmt.Errorf("failed to read from server: %w", err)
		}

		if _, err := t.out.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
}

func (t *Terminal) writeLoop(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.conn.SetWriteDeadline(time.Now().Add(terminalWriteWait))
		if err := t.conn.WriteMessage(websocket.TextMessage, []byte(scanner.Text()+lineEnding)); err != nil {
			return fmt.Errorf("failed to send line: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

// close sends a normal closure and waits briefly for the server to answer
func (t *Terminal) close(readDone <-chan error) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
		return
	}

	select {
	case <-readDone:
	case <-time.After(closeWait):
	}
}
