package binance

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"aggconflate/internal/errs"
	"aggconflate/internal/model"
)

// wsDialer mirrors the Rust ancestor's WebSocketConfig: generous frame/message
// size ceilings since a burst of conflated aggTrade frames can be large.
var wsDialer = websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   64 << 10,
	WriteBufferSize:  16 << 10,
}

// ConnectAggTradeStream dials the aggTrade WebSocket stream for symbol on
// the given market.
func ConnectAggTradeStream(ctx context.Context, kind model.MarketKind, symbol string) (*websocket.Conn, error) {
	conn, _, err := wsDialer.DialContext(ctx, wsEndpoint(kind, symbol), nil)
	if err != nil {
		return nil, errs.Wrap(errs.WebSocket, "dial aggTrade stream", err)
	}
	conn.SetReadLimit(64 << 20)
	return conn, nil
}
