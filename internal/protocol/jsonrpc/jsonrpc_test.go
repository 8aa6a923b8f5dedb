package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipe is an in-memory, condvar-backed line queue. One pipe carries a Peer's
// outgoing requests to a fake server loop and another carries the server's
// responses back into the Peer's Serve reader — enough to exercise
// Call/Serve end to end without a real process.
type pipe struct {
	mu  sync.Mutex
	buf [][]byte
	cv  *sync.Cond
	closed bool
}

func newPipe() *pipe {
	p := &pipe{}
	p.cv = sync.NewCond(&p.mu)
	return p
}

func (p *pipe) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	p.mu.Lock()
	p.buf = append(p.buf, cp)
	p.cv.Signal()
	p.mu.Unlock()
	return len(b), nil
}

func (p *pipe) Read(out []byte) (int, error) {
	p.mu.Lock()
	for len(p.buf) == 0 && !p.closed {
		p.cv.Wait()
	}
	if len(p.buf) == 0 && p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	line := p.buf[0]
	p.buf = p.buf[1:]
	p.mu.Unlock()
	n := copy(out, line)
	return n, nil
}

func (p *pipe) Close() {
	p.mu.Lock()
	p.closed = true
	p.cv.Broadcast()
	p.mu.Unlock()
}

func TestCallReturnsMatchingResponse(t *testing.T) {
	toServer := newPipe()
	toClient := newPipe()
	defer toServer.Close()
	defer toClient.Close()

	client := NewPeer(toServer)

	// Fake server: reads one request line, echoes back a success response
	// for whatever id it was sent.
	go func() {
		var buf [4096]byte
		n, err := toServer.Read(buf[:])
		if err != nil {
			return
		}
		var req Request
		_ = json.Unmarshal(buf[:n], &req)
		resp := Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
		enc, _ := json.Marshal(resp)
		enc = append(enc, '\n')
		_, _ = toClient.Write(enc)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = client.Serve(ctx, toClient) }()

	result, err := client.Call(ctx, "tools/list", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestCallSurfacesServerError(t *testing.T) {
	toServer := newPipe()
	toClient := newPipe()
	defer toServer.Close()
	defer toClient.Close()

	client := NewPeer(toServer)

	go func() {
		var buf [4096]byte
		n, err := toServer.Read(buf[:])
		if err != nil {
			return
		}
		var req Request
		_ = json.Unmarshal(buf[:n], &req)
		resp := Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: CodeMethodNotFound, Message: "no such method"}}
		enc, _ := json.Marshal(resp)
		enc = append(enc, '\n')
		_, _ = toClient.Write(enc)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = client.Serve(ctx, toClient) }()

	_, err := client.Call(ctx, "bogus", nil)
	require.Error(t, err)
	rpcErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestCallTimesOutWithTransportErrorCode(t *testing.T) {
	toServer := newPipe()
	toClient := newPipe()
	defer toServer.Close()
	defer toClient.Close()

	client := NewPeer(toServer)

	// No server responds; Call must give up when ctx is cancelled.
	go func() {
		var buf [4096]byte
		_, _ = toServer.Read(buf[:])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go func() { _ = client.Serve(ctx, toClient) }()

	_, err := client.Call(ctx, "slow", nil)
	require.Error(t, err)
	rpcErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeTransportTimeout, rpcErr.Code)
}

func TestNotifySendsNoID(t *testing.T) {
	toServer := newPipe()
	defer toServer.Close()
	client := NewPeer(toServer)

	require.NoError(t, client.Notify("log", map[string]string{"level": "info"}))

	var buf [4096]byte
	n, err := toServer.Read(buf[:])
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(buf[:n], &req))
	assert.Nil(t, req.ID)
	assert.Equal(t, "log", req.Method)
}
