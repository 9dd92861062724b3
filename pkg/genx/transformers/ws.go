package transformers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/wire"
)

// WSDialer dials realtime sessions over WebSocket. Every message in either
// direction is one binary wire.Frame. The client ends its input with an End
// frame; the server ends the session with one, carrying the outcome.
//
// The pattern passed to Dial is sent as the "model" query parameter.
type WSDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

var _ Dialer = (*WSDialer)(nil)

func NewWSDialer(url string, header http.Header) *WSDialer {
	return &WSDialer{
		URL:    url,
		Header: header,
		Dialer: websocket.DefaultDialer,
	}
}

func (d *WSDialer) Dial(ctx context.Context, pattern string) (RealtimeSession, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("transformers: ws url: %w", err)
	}
	if pattern != "" {
		q := u.Query()
		q.Set("model", pattern)
		u.RawQuery = q.Encode()
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transformers: ws dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("transformers: ws dial: %w", err)
	}
	return &wsSession{conn: conn}, nil
}

type wsSession struct {
	conn *websocket.Conn

	wmu       sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *wsSession) write(ctx context.Context, f *wire.Frame) error {
	b, err := wire.Marshal(f)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	deadline, _ := ctx.Deadline()
	s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (s *wsSession) Send(ctx context.Context, chunk *genx.MessageChunk) error {
	return s.write(ctx, wire.FromChunk(chunk))
}

func (s *wsSession) CloseSend(ctx context.Context) error {
	return s.write(ctx, wire.EndOf(genx.StreamResult{Status: genx.StatusDone}, nil))
}

func (s *wsSession) Recv() iter.Seq2[*genx.MessageChunk, error] {
	return func(yield func(*genx.MessageChunk, error) bool) {
		for {
			_, b, err := s.conn.ReadMessage()
			if err != nil {
				if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return
				}
				yield(nil, err)
				return
			}
			f, err := wire.Unmarshal(b)
			if err != nil {
				yield(nil, err)
				return
			}
			if f.End != nil {
				if err := f.End.Err(); err != nil {
					yield(nil, err)
				}
				return
			}
			chunk, err := f.Chunk()
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if cerr := s.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}
