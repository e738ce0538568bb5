package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"net"
	"os"
)

// unixConn adapts a net.Conn to the Hub's conn interface, framing each
// JSON value as a single newline-terminated line (the socket equivalent
// of a WebSocket text frame).
type unixConn struct {
	c *net.UnixConn
	w *bufio.Writer
}

func newUnixConn(c *net.UnixConn) *unixConn {
	return &unixConn{c: c, w: bufio.NewWriter(c)}
}

func (u *unixConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := u.w.Write(data); err != nil {
		return err
	}
	return u.w.Flush()
}

func (u *unixConn) Close() error { return u.c.Close() }

// ListenUnixSocket serves JSON-RPC over a Unix domain socket at path,
// one newline-delimited JSON value per request/notification, symmetric
// with WebSocketHandler's framing. Grounded on the teacher's tmux
// subprocess-pipe line-scanning idiom (internal/monitor/jsonl.go) applied
// to a listening socket instead of a child process's stdout.
func ListenUnixSocket(path string, hub *Hub) error {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return err
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}

	go func() {
		for {
			conn, err := listener.AcceptUnix()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("wire: unix accept error: %v", err)
				continue
			}
			go serveUnixConn(conn, hub)
		}
	}()
	return nil
}

func serveUnixConn(raw *net.UnixConn, hub *Hub) {
	uc := newUnixConn(raw)
	cl := hub.AddClient(uc)
	defer hub.RemoveClient(cl)
	defer raw.Close()

	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		req, err := ParseRequest(line)
		if err != nil {
			uc.WriteJSON(NewError(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := hub.Dispatch(cl, req); resp != nil {
			uc.WriteJSON(resp)
		}
	}
}
