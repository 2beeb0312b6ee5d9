package ingest

import (
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/backlab/ticksim/pkg/candle"
)

const wsReadWait = 60 * time.Second

// WSParser reads OHLC bars from a WebSocket feed, one JSON object per
// text message, using the same field aliases as the NDJSON parser. A
// normal close from the peer ends the stream with io.EOF.
type WSParser struct {
	conn     *websocket.Conn
	tickSize float64
	line     int
}

// DialWS connects to url and returns a bar source over the connection.
func DialWS(url string, tickSize float64) (*WSParser, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadWait))
		return nil
	})

	return &WSParser{conn: conn, tickSize: tickSize}, nil
}

// NewWSParser wraps an already-established connection, e.g. one
// accepted server-side in tests.
func NewWSParser(conn *websocket.Conn, tickSize float64) *WSParser {
	return &WSParser{conn: conn, tickSize: tickSize}
}

func (p *WSParser) TickSize() float64 { return p.tickSize }

func (p *WSParser) Next() (candle.Candle, error) {
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return candle.Candle{}, io.EOF
			}
			return candle.Candle{}, fmt.Errorf("ws read: %w", err)
		}
		p.conn.SetReadDeadline(time.Now().Add(wsReadWait))

		if msgType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		p.line++

		b, err := parseBarObject(data)
		if err != nil {
			return candle.Candle{}, &RecordError{Record: p.line, Err: err}
		}
		if err := b.Validate(); err != nil {
			return candle.Candle{}, &RecordError{Record: p.line, Validation: true, Err: err}
		}

		c := candle.Quantize(b, p.tickSize)
		if err := c.Validate(); err != nil {
			return candle.Candle{}, &RecordError{Record: p.line, Validation: true, Err: err}
		}
		return c, nil
	}
}

// Close sends a close frame and tears down the connection.
func (p *WSParser) Close() error {
	deadline := time.Now().Add(time.Second)
	p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return p.conn.Close()
}
