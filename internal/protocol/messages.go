// Package protocol implements the tag-based, self-framed wire protocol
// described in spec.md §6: a FIX.4.4-flavored header (version, target,
// sender, sending_time, seq_num, msg_type) followed by type-specific
// tag=value fields, one message per TCP frame.
package protocol

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Version is the protocol version carried in every header's tag 8.
const Version = "FIX.4.4"

// Type codes from spec.md §6's message catalogue.
const (
	TypeRegisterRequest           = "A"
	TypeRegisterResponse          = "AY" // not in the original FIX catalogue; a spec-only addition, given an unused two-letter code
	TypeNewOrderSingle            = "D"
	TypeOrderCancelRequest        = "F"
	TypeOrderModifyRequestQty     = "G"
	TypeOrderStatusRequest        = "H"
	TypeMarketDataRequest         = "V"
	TypeUserOrderStatusRequest    = "AF"
	TypeUserBalanceRequest        = "BB"
	TypeCaptureReportRequest      = "AD"
	TypeInitializeLiquidityEngine = "LQ" // admin-style seeding request, accepted from any registered user: not in the original catalogue, grounded on market_maker.py's initialize_market
	TypeExecutionReport           = "8"
	TypeReject                    = "9"
	TypeMarketDataSnapshot        = "W"
	TypeUserOrderStatus           = "AG" // not in the original catalogue either: the original piggybacked this on ExecutionReport (msg_type 8, ExecType 2) with a raw JSON body; a dedicated type keeps ExecutionReport's fixed field set honest
	TypeCollateralReport          = "BA"
	TypeTradeCaptureReport        = "AE"
)

// ExecStatus is the tag-39 status carried on an ExecutionReport.
type ExecStatus int

const (
	ExecStatusNew             ExecStatus = 0
	ExecStatusResting         ExecStatus = 1 // "Partially filled" in FIX terms
	ExecStatusFilled          ExecStatus = 2
	ExecStatusCanceled        ExecStatus = 4
	ExecStatusReplaced        ExecStatus = 5
	ExecStatusRejected        ExecStatus = 8
)

// Header carries the standard fields present on every message.
type Header struct {
	Version     string
	Target      string
	Sender      string
	SendingTime int64 // microseconds UTC
	SeqNum      uint64
	MsgType     string
}

// Message is implemented by every concrete request/response type.
type Message interface {
	Header() Header
	msgType() string
}

type base struct {
	Hdr Header
}

func (b base) Header() Header { return b.Hdr }

// --- Client -> Server -------------------------------------------------

// RegisterRequest asks the server to mint a new user identity.
type RegisterRequest struct {
	base
	UserName string
	Budget   decimal.Decimal
}

func (RegisterRequest) msgType() string { return TypeRegisterRequest }

// NewOrderSingle submits a new limit order.
type NewOrderSingle struct {
	base
	Product  string
	Side     int // 1=Buy, 2=Sell, per §6
	Quantity uint64
	Price    decimal.Decimal
}

func (NewOrderSingle) msgType() string { return TypeNewOrderSingle }

// OrderCancelRequest cancels a resting order by id.
type OrderCancelRequest struct {
	base
	Product string
	OrderID string
}

func (OrderCancelRequest) msgType() string { return TypeOrderCancelRequest }

// OrderModifyRequestQty decreases a resting order's quantity in place.
type OrderModifyRequestQty struct {
	base
	Product     string
	OrderID     string
	NewQuantity uint64
}

func (OrderModifyRequestQty) msgType() string { return TypeOrderModifyRequestQty }

// OrderStatusRequest asks for a single order's current state.
type OrderStatusRequest struct {
	base
	Product string
	OrderID string
}

func (OrderStatusRequest) msgType() string { return TypeOrderStatusRequest }

// MarketDataRequest asks for a snapshot of a product's book.
type MarketDataRequest struct {
	base
	Product string
	Depth   int
}

func (MarketDataRequest) msgType() string { return TypeMarketDataRequest }

// UserOrderStatusRequest asks for every resting order a user owns in a
// product.
type UserOrderStatusRequest struct {
	base
	Product string
	User    string
}

func (UserOrderStatusRequest) msgType() string { return TypeUserOrderStatusRequest }

// UserBalanceRequest asks for a user's per-product balance.
type UserBalanceRequest struct {
	base
	Product string
	User    string
}

func (UserBalanceRequest) msgType() string { return TypeUserBalanceRequest }

// CaptureReportRequest asks for the last N history snapshots.
type CaptureReportRequest struct {
	base
	Product    string
	HistoryLen int
}

func (CaptureReportRequest) msgType() string { return TypeCaptureReportRequest }

// InitializeLiquidityEngineRequest seeds a product's book with resting
// two-sided quotes from the reserved liquidity_generator identity, the
// deterministic Go counterpart of the original's stochastic MarketMaker
// agent (market_maker.py's initialize_market).
type InitializeLiquidityEngineRequest struct {
	base
	Product       string
	StartingPrice decimal.Decimal
	Spread        decimal.Decimal
	NumOrders     int
	OrderSize     uint64
}

func (InitializeLiquidityEngineRequest) msgType() string { return TypeInitializeLiquidityEngine }

// --- Server -> Client -------------------------------------------------

// RegisterResponse carries the user id assigned by RegisterRequest.
type RegisterResponse struct {
	base
	UserID string
}

func (RegisterResponse) msgType() string { return TypeRegisterResponse }

// ExecutionReport reports the disposition of a mutating request.
type ExecutionReport struct {
	base
	OrderID    string
	ExecStatus ExecStatus
	Side       *int
	Quantity   *uint64
	Price      *decimal.Decimal
}

func (ExecutionReport) msgType() string { return TypeExecutionReport }

// Reject rejects a malformed or failed request.
type Reject struct {
	base
	OrderID string
	Reason  string
}

func (Reject) msgType() string { return TypeReject }

// MarketDataSnapshot carries a product's order-book snapshot as its JSON
// payload (§6's "Snapshot payload").
type MarketDataSnapshot struct {
	base
	Product string
	Payload json.RawMessage
}

func (MarketDataSnapshot) msgType() string { return TypeMarketDataSnapshot }

// UserOrderStatus carries a user's resting orders in a product as a JSON
// payload (an array of order.View).
type UserOrderStatus struct {
	base
	Product string
	Payload json.RawMessage
}

func (UserOrderStatus) msgType() string { return TypeUserOrderStatus }

// CollateralReport carries a user-balance JSON payload.
type CollateralReport struct {
	base
	Payload json.RawMessage
}

func (CollateralReport) msgType() string { return TypeCollateralReport }

// TradeCaptureReport carries a history JSON payload.
type TradeCaptureReport struct {
	base
	Payload json.RawMessage
}

func (TradeCaptureReport) msgType() string { return TypeTradeCaptureReport }
