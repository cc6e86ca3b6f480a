package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputra/lobx/internal/broadcast"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/product"
	"github.com/saiputra/lobx/internal/protocol"
	"github.com/saiputra/lobx/internal/session"
	"github.com/saiputra/lobx/internal/user"
)

func newLoopbackServer(t *testing.T, kind Kind) (string, context.CancelFunc) {
	t.Helper()
	products := product.New([]common.Product{"BTC-USD"})
	users := user.New()
	broadcasters := map[common.Product]*broadcast.Broadcaster{"BTC-USD": broadcast.New(zerolog.Nop())}
	var ts int64
	clock := func() int64 { ts++; return ts }
	d := session.New(products, users, broadcasters, decimal.Zero, decimal.Zero, clock, zerolog.Nop(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := NewServer(addr, kind, d, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	return addr, cancel
}

func TestServer_RegisterAndNewOrderRoundTrip(t *testing.T) {
	addr, cancel := newLoopbackServer(t, Trading)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	enc := protocol.NewCodec("client", "server")
	frame, err := enc.Encode(protocol.RegisterRequest{UserName: "alice", Budget: decimal.RequireFromString("1000.00")}, 1)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	dec := protocol.NewCodec("server", "client")
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	msg, ok, err := dec.Push(buf[:n])
	require.NoError(t, err)
	require.True(t, ok)
	reg := msg.(protocol.RegisterResponse)
	assert.NotEmpty(t, reg.UserID)

	encClient := protocol.NewCodec(reg.UserID, "server")
	orderFrame, err := encClient.Encode(protocol.NewOrderSingle{Product: "BTC-USD", Side: 1, Quantity: 5, Price: decimal.RequireFromString("10.00")}, 2)
	require.NoError(t, err)
	_, err = conn.Write(orderFrame)
	require.NoError(t, err)

	n, err = conn.Read(buf)
	require.NoError(t, err)
	msg, ok, err = dec.Push(buf[:n])
	require.NoError(t, err)
	require.True(t, ok)
	er := msg.(protocol.ExecutionReport)
	assert.Equal(t, protocol.ExecStatusResting, er.ExecStatus)
}

func TestServer_QuoteSessionRejectsNewOrder(t *testing.T) {
	addr, cancel := newLoopbackServer(t, Quote)
	defer cancel()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	enc := protocol.NewCodec("alice", "server")
	frame, err := enc.Encode(protocol.NewOrderSingle{Product: "BTC-USD", Side: 1, Quantity: 1, Price: decimal.RequireFromString("1.00")}, 1)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	dec := protocol.NewCodec("server", "alice")
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	msg, ok, err := dec.Push(buf[:n])
	require.NoError(t, err)
	require.True(t, ok)
	_, isReject := msg.(protocol.Reject)
	assert.True(t, isReject)
}
