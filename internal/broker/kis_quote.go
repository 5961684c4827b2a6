package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// trRealtimePrice is the KIS transaction ID for per-trade price ticks.
const trRealtimePrice = "H0STCNT0"

// Quote is one real-time trade tick.
type Quote struct {
	Symbol string
	Time   string // exchange time, HHMMSS
	Price  float64
	Volume float64 // cumulative session volume
}

// QuoteStreamConfig configures the real-time stream.
type QuoteStreamConfig struct {
	// ApprovalKey authenticates the websocket session. Issued by the
	// /oauth2/Approval REST endpoint.
	ApprovalKey string
	// URL is the websocket endpoint, e.g.
	// ws://ops.koreainvestment.com:31000 for the virtual environment.
	URL string
	// ReadTimeout bounds each read; the server sends PINGPONG frames
	// well inside this window.
	ReadTimeout time.Duration
	// WriteTimeout bounds subscription and pong writes.
	WriteTimeout time.Duration
}

// QuoteStream receives real-time price ticks over the KIS websocket.
// Data frames are pipe-delimited with caret-separated fields; control
// frames (subscription acks, PINGPONG keepalives) are JSON.
type QuoteStream struct {
	cfg  QuoteStreamConfig
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool

	quotes chan Quote
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// ApprovalKey requests a websocket approval key for the configured app
// credentials.
func (b *KISBroker) ApprovalKey(ctx context.Context) (string, error) {
	payload := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     b.cfg.AppKey,
		"secretkey":  b.cfg.AppSecret,
	}
	var resp struct {
		ApprovalKey string `json:"approval_key"`
	}
	if err := b.post(ctx, "/oauth2/Approval", map[string]string{"content-type": "application/json"}, payload, &resp); err != nil {
		return "", fmt.Errorf("approval key: %w", err)
	}
	if resp.ApprovalKey == "" {
		return "", fmt.Errorf("approval key: empty response")
	}
	return resp.ApprovalKey, nil
}

// NewQuoteStream dials the websocket endpoint and starts the reader.
func NewQuoteStream(ctx context.Context, cfg QuoteStreamConfig) (*QuoteStream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("quote stream: empty url")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &QuoteStream{
		cfg:    cfg,
		conn:   conn,
		quotes: make(chan Quote, 1024),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// Subscribe registers for price ticks on one symbol.
func (s *QuoteStream) Subscribe(symbol string) error {
	return s.sendControl(symbol, "1")
}

// Unsubscribe cancels the registration for one symbol.
func (s *QuoteStream) Unsubscribe(symbol string) error {
	return s.sendControl(symbol, "2")
}

func (s *QuoteStream) sendControl(symbol, trType string) error {
	if s.closed.Load() {
		return fmt.Errorf("quote stream closed")
	}

	msg := map[string]any{
		"header": map[string]string{
			"approval_key": s.cfg.ApprovalKey,
			"custtype":     "P",
			"tr_type":      trType,
			"content-type": "utf-8",
		},
		"body": map[string]any{
			"input": map[string]string{
				"tr_id":  trRealtimePrice,
				"tr_key": symbol,
			},
		},
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Quotes returns the tick channel. It is closed when the stream shuts
// down.
func (s *QuoteStream) Quotes() <-chan Quote {
	return s.quotes
}

// Err returns the terminal read error, if any, after Quotes closes.
func (s *QuoteStream) Err() <-chan error {
	return s.errs
}

// Close shuts the stream down and waits for the reader to exit.
func (s *QuoteStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.conn.Close()
	s.writeMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *QuoteStream) readLoop() {
	defer s.wg.Done()
	defer close(s.quotes)

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				select {
				case s.errs <- err:
				default:
				}
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *QuoteStream) handleMessage(message []byte) {
	text := string(message)

	// Data frames: "<enc>|<tr_id>|<count>|<field^field^...>".
	if strings.HasPrefix(text, "0|") || strings.HasPrefix(text, "1|") {
		s.handleTick(text)
		return
	}

	// Control frames are JSON; the only one needing a reply is the
	// PINGPONG keepalive, echoed verbatim.
	var ctrl struct {
		Header struct {
			TrID string `json:"tr_id"`
		} `json:"header"`
	}
	if err := json.Unmarshal(message, &ctrl); err != nil {
		return
	}
	if ctrl.Header.TrID == "PINGPONG" {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		s.conn.WriteMessage(websocket.TextMessage, message)
		s.writeMu.Unlock()
	}
}

func (s *QuoteStream) handleTick(text string) {
	parts := strings.SplitN(text, "|", 4)
	if len(parts) < 4 || parts[1] != trRealtimePrice {
		return
	}

	// H0STCNT0 fields: 0=symbol, 1=time, 2=price, ..., 13=cumulative volume.
	fields := strings.Split(parts[3], "^")
	if len(fields) < 3 {
		return
	}
	quote := Quote{
		Symbol: fields[0],
		Time:   fields[1],
		Price:  parsePrice(fields[2]),
	}
	if len(fields) > 13 {
		quote.Volume = parsePrice(fields[13])
	}

	select {
	case s.quotes <- quote:
	case <-s.done:
	}
}
