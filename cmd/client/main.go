// Command client is a manual-testing CLI for the lobx exchange, grounded
// on the teacher's cmd/client/client.go: connect, send one request built
// from flags, print whatever comes back.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/protocol"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:7000", "address of the trading session")
	user := flag.String("user", "", "assigned user id (required for everything but register)")
	action := flag.String("action", "register", "register|order|cancel|modify|status|snapshot|orders|balance|capture|seed")

	name := flag.String("name", "trader", "user name for register")
	budget := flag.String("budget", "10000.00", "starting budget for register")

	product := flag.String("product", "BTC-USD", "product symbol")
	side := flag.Int("side", 1, "1=buy, 2=sell")
	qty := flag.Uint64("qty", 10, "order quantity")
	price := flag.String("price", "100.00", "limit price")
	orderID := flag.String("order-id", "", "order id for cancel/modify/status")
	depth := flag.Int("depth", -1, "snapshot depth, -1 for unbounded")
	historyLen := flag.Int("history", -1, "capture-report history length, -1 for all")

	spread := flag.String("spread", "1.00", "seed: price step between successive quotes")
	numOrders := flag.Int("num-orders", 10, "seed: number of quotes per side")
	orderSize := flag.Uint64("order-size", 100, "seed: quantity per seeded quote")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	sender := *user
	codec := protocol.NewCodec(sender, "server")

	msg, err := buildRequest(*action, *name, *budget, *product, *side, *qty, *price, *orderID, *depth, *historyLen, *spread, *numOrders, *orderSize, *user)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}

	frame, err := codec.Encode(msg, time.Now().UnixMicro())
	if err != nil {
		log.Fatalf("encode request: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		log.Fatalf("write request: %v", err)
	}

	resp := make([]byte, 8192)
	n, err := conn.Read(resp)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}

	dec := protocol.NewCodec("server", sender)
	decoded, ok, err := dec.Push(resp[:n])
	if err != nil {
		log.Fatalf("decode response: %v", err)
	}
	if !ok {
		fmt.Println("no complete response received")
		return
	}
	printResponse(decoded)
}

func buildRequest(action, name, budget, product string, side int, qty uint64, price, orderID string, depth, historyLen int, spread string, numOrders int, orderSize uint64, user string) (protocol.Message, error) {
	switch strings.ToLower(action) {
	case "register":
		b, err := decimal.NewFromString(budget)
		if err != nil {
			return nil, err
		}
		return protocol.RegisterRequest{UserName: name, Budget: b}, nil

	case "order":
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		return protocol.NewOrderSingle{Product: product, Side: side, Quantity: qty, Price: p}, nil

	case "cancel":
		return protocol.OrderCancelRequest{Product: product, OrderID: orderID}, nil

	case "modify":
		return protocol.OrderModifyRequestQty{Product: product, OrderID: orderID, NewQuantity: qty}, nil

	case "status":
		return protocol.OrderStatusRequest{Product: product, OrderID: orderID}, nil

	case "snapshot":
		return protocol.MarketDataRequest{Product: product, Depth: depth}, nil

	case "orders":
		return protocol.UserOrderStatusRequest{Product: product, User: user}, nil

	case "balance":
		return protocol.UserBalanceRequest{Product: product, User: user}, nil

	case "capture":
		return protocol.CaptureReportRequest{Product: product, HistoryLen: historyLen}, nil

	case "seed":
		startingPrice, err := decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		sp, err := decimal.NewFromString(spread)
		if err != nil {
			return nil, err
		}
		return protocol.InitializeLiquidityEngineRequest{Product: product, StartingPrice: startingPrice, Spread: sp, NumOrders: numOrders, OrderSize: orderSize}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func printResponse(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.RegisterResponse:
		fmt.Printf("registered: user-id=%s\n", m.UserID)
	case protocol.ExecutionReport:
		fmt.Printf("execution report: order-id=%s status=%d", m.OrderID, m.ExecStatus)
		if m.Side != nil {
			fmt.Printf(" side=%d", *m.Side)
		}
		if m.Quantity != nil {
			fmt.Printf(" qty=%d", *m.Quantity)
		}
		if m.Price != nil {
			fmt.Printf(" price=%s", m.Price.String())
		}
		fmt.Println()
	case protocol.Reject:
		fmt.Printf("rejected: order-id=%s reason=%s\n", m.OrderID, m.Reason)
	case protocol.MarketDataSnapshot:
		fmt.Printf("market data snapshot (%s): %s\n", m.Product, string(m.Payload))
	case protocol.UserOrderStatus:
		fmt.Printf("user orders (%s): %s\n", m.Product, string(m.Payload))
	case protocol.CollateralReport:
		fmt.Printf("collateral report: %s\n", string(m.Payload))
	case protocol.TradeCaptureReport:
		fmt.Printf("trade capture report: %s\n", string(m.Payload))
	default:
		fmt.Printf("unrecognized response: %#v\n", msg)
	}
}
