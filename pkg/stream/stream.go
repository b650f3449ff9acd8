package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Client manages lightweight kline streaming from the exchange public websocket.
type Client struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewClient builds a websocket client; testnet toggles the host.
func NewClient(testnet bool) *Client {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &Client{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeKlines listens to a kline stream and pushes parsed klines into a channel.
// It returns the channel and a stop function.
func (c *Client) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// The exchange requires lowercase symbols for websocket streams.
	name := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	u := fmt.Sprintf("%s/%s", c.StreamURL, name)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial kline ws: %w", err)
	}

	out := make(chan Kline, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("kline ws read error: %v", err)
				return
			}

			parsed, err := parseKlineMessage(msg)
			if err != nil {
				log.Printf("kline ws parse error: %v", err)
				continue
			}
			out <- parsed
		}
	}()

	return out, stop, nil
}

// parseKlineMessage decodes only the fields the core needs.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Data struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			Final     bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	if raw.Data.Symbol == "" {
		return Kline{}, fmt.Errorf("kline message missing symbol")
	}
	return Kline{
		Symbol:    raw.Data.Symbol,
		Interval:  raw.Data.Interval,
		OpenTime:  raw.Data.StartTime,
		CloseTime: raw.Data.CloseTime,
		Open:      raw.Data.Open,
		High:      raw.Data.High,
		Low:       raw.Data.Low,
		Close:     raw.Data.Close,
		Volume:    raw.Data.Volume,
		Final:     raw.Data.Final,
	}, nil
}
