package stream

// Kline is the decoded candlestick payload from the exchange websocket.
// Prices stay as strings until the core converts them to decimals, so no
// precision is lost at the wire boundary.
type Kline struct {
	Symbol    string
	Interval  string
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
	Final     bool // true when the bar is closed
}
