package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Tag numbers. Where the original FIXProtocol.py used a tag for the same
// field, that number is kept (ClOrdID 41, Symbol 55, Side 54, OrderQty 38,
// Price 44, OrdStatus 39, LeavesQty 151, MarketDepth 264, PartyID 448,
// TradeRequestID 568, RawData 58, Username 553); fields this protocol adds
// that the original never put on the wire (Budget, the assigned user id,
// a reject reason) use the FIX user-defined-field range (>=5000).
const (
	tagBeginString  = 8
	tagMsgType      = 35
	tagSenderCompID = 49
	tagTargetCompID = 56
	tagSendingTime  = 52
	tagMsgSeqNum    = 34

	tagClOrdID        = 41
	tagOrderID        = 37
	tagSymbol         = 55
	tagSide           = 54
	tagOrderQty       = 38
	tagPrice          = 44
	tagOrdStatus      = 39
	tagLeavesQty      = 151
	tagMarketDepth    = 264
	tagPartyID        = 448
	tagTradeRequestID = 568
	tagRawData        = 58
	tagUsername       = 553

	tagBudget       = 5001
	tagAssignedUser = 5002
	tagRejectReason = 5003
	tagSpread       = 5004
	tagNumOrders    = 5005
	tagOrderSize    = 5006
)

const soh = byte(1)

type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) str(tag int, v string) {
	w.buf = append(w.buf, []byte(strconv.Itoa(tag))...)
	w.buf = append(w.buf, '=')
	w.buf = append(w.buf, []byte(v)...)
	w.buf = append(w.buf, soh)
}

func (w *fieldWriter) int(tag int, v int64) { w.str(tag, strconv.FormatInt(v, 10)) }
func (w *fieldWriter) uint(tag int, v uint64) { w.str(tag, strconv.FormatUint(v, 10)) }

type fields map[int]string

func parseFields(body []byte) (fields, error) {
	out := make(fields)
	start := 0
	for i, b := range body {
		if b != soh {
			continue
		}
		pair := body[start:i]
		start = i + 1
		eq := -1
		for j, c := range pair {
			if c == '=' {
				eq = j
				break
			}
		}
		if eq < 0 {
			return nil, fmt.Errorf("protocol: malformed field %q", pair)
		}
		tag, err := strconv.Atoi(string(pair[:eq]))
		if err != nil {
			return nil, fmt.Errorf("protocol: bad tag in %q: %w", pair, err)
		}
		out[tag] = string(pair[eq+1:])
	}
	return out, nil
}

func (f fields) str(tag int) (string, bool) {
	v, ok := f[tag]
	return v, ok
}

func (f fields) mustStr(tag int) (string, error) {
	v, ok := f[tag]
	if !ok {
		return "", fmt.Errorf("protocol: missing tag %d", tag)
	}
	return v, nil
}

func (f fields) mustUint(tag int) (uint64, error) {
	v, err := f.mustStr(tag)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func (f fields) mustInt(tag int) (int, error) {
	v, err := f.mustStr(tag)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (f fields) mustDecimal(tag int) (decimal.Decimal, error) {
	v, err := f.mustStr(tag)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(v)
}

// Codec is a stateful per-session encoder/decoder: it stamps every
// outbound message with the session's sender/target identity and an
// auto-incrementing seq_num, and exposes a streaming Push decoder so
// callers can feed arbitrary TCP read chunks (§4.6).
type Codec struct {
	Sender string
	Target string

	seqNum uint64
	buf    []byte
}

// NewCodec creates a codec for one session identity.
func NewCodec(sender, target string) *Codec {
	return &Codec{Sender: sender, Target: target}
}

func (c *Codec) header(w *fieldWriter, msgType string, sendingTime int64) {
	w.str(tagBeginString, Version)
	w.str(tagTargetCompID, c.Target)
	w.str(tagSenderCompID, c.Sender)
	w.int(tagSendingTime, sendingTime)
	w.uint(tagMsgSeqNum, c.seqNum)
	c.seqNum++
	w.str(tagMsgType, msgType)
}

// Encode renders msg as a complete, length-prefixed wire frame.
func (c *Codec) Encode(msg Message, sendingTime int64) ([]byte, error) {
	w := &fieldWriter{}
	c.header(w, msg.msgType(), sendingTime)

	switch m := msg.(type) {
	case RegisterRequest:
		w.str(tagUsername, m.UserName)
		w.str(tagBudget, m.Budget.String())
	case NewOrderSingle:
		w.str(tagSymbol, m.Product)
		w.int(tagSide, int64(m.Side))
		w.uint(tagOrderQty, m.Quantity)
		w.str(tagPrice, m.Price.String())
	case OrderCancelRequest:
		w.str(tagSymbol, m.Product)
		w.str(tagClOrdID, m.OrderID)
	case OrderModifyRequestQty:
		w.str(tagSymbol, m.Product)
		w.str(tagClOrdID, m.OrderID)
		w.uint(tagOrderQty, m.NewQuantity)
	case OrderStatusRequest:
		w.str(tagSymbol, m.Product)
		w.str(tagClOrdID, m.OrderID)
	case MarketDataRequest:
		w.str(tagSymbol, m.Product)
		w.int(tagMarketDepth, int64(m.Depth))
	case UserOrderStatusRequest:
		w.str(tagSymbol, m.Product)
		w.str(tagPartyID, m.User)
	case UserBalanceRequest:
		w.str(tagSymbol, m.Product)
		w.str(tagPartyID, m.User)
	case CaptureReportRequest:
		w.str(tagSymbol, m.Product)
		w.int(tagTradeRequestID, int64(m.HistoryLen))
	case InitializeLiquidityEngineRequest:
		w.str(tagSymbol, m.Product)
		w.str(tagPrice, m.StartingPrice.String())
		w.str(tagSpread, m.Spread.String())
		w.int(tagNumOrders, int64(m.NumOrders))
		w.uint(tagOrderSize, m.OrderSize)
	case RegisterResponse:
		w.str(tagAssignedUser, m.UserID)
	case ExecutionReport:
		w.str(tagOrderID, m.OrderID)
		w.int(tagOrdStatus, int64(m.ExecStatus))
		if m.Side != nil {
			w.int(tagSide, int64(*m.Side))
		}
		if m.Quantity != nil {
			w.uint(tagLeavesQty, *m.Quantity)
		}
		if m.Price != nil {
			w.str(tagPrice, m.Price.String())
		}
	case Reject:
		w.str(tagOrderID, m.OrderID)
		w.str(tagRejectReason, m.Reason)
	case MarketDataSnapshot:
		w.str(tagSymbol, m.Product)
		w.str(tagRawData, string(m.Payload))
	case UserOrderStatus:
		w.str(tagSymbol, m.Product)
		w.str(tagRawData, string(m.Payload))
	case CollateralReport:
		w.str(tagRawData, string(m.Payload))
	case TradeCaptureReport:
		w.str(tagRawData, string(m.Payload))
	default:
		return nil, fmt.Errorf("protocol: unknown message type %T", msg)
	}

	frame := make([]byte, 4+len(w.buf))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(w.buf)))
	copy(frame[4:], w.buf)
	return frame, nil
}

// Push appends chunk to the codec's internal buffer and, if a full frame
// is now available, decodes and returns it along with ok=true, leaving
// any trailing bytes buffered for the next call. Pass a nil chunk to drain
// additional already-buffered frames. ok=false with a nil error means
// "need more bytes".
func (c *Codec) Push(chunk []byte) (Message, bool, error) {
	c.buf = append(c.buf, chunk...)
	if len(c.buf) < 4 {
		return nil, false, nil
	}
	bodyLen := binary.BigEndian.Uint32(c.buf[:4])
	total := 4 + int(bodyLen)
	if len(c.buf) < total {
		return nil, false, nil
	}
	body := c.buf[4:total]
	c.buf = append([]byte(nil), c.buf[total:]...)

	f, err := parseFields(body)
	if err != nil {
		return nil, false, err
	}
	msg, err := decodeBody(f)
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

func decodeHeader(f fields) (Header, error) {
	msgType, err := f.mustStr(tagMsgType)
	if err != nil {
		return Header{}, err
	}
	sender, _ := f.str(tagSenderCompID)
	target, _ := f.str(tagTargetCompID)
	sendingTime, err := f.mustInt(tagSendingTime)
	if err != nil {
		return Header{}, err
	}
	seqNum, err := f.mustUint(tagMsgSeqNum)
	if err != nil {
		return Header{}, err
	}
	version, _ := f.str(tagBeginString)
	return Header{
		Version:     version,
		Target:      target,
		Sender:      sender,
		SendingTime: int64(sendingTime),
		SeqNum:      seqNum,
		MsgType:     msgType,
	}, nil
}

func decodeBody(f fields) (Message, error) {
	hdr, err := decodeHeader(f)
	if err != nil {
		return nil, err
	}
	b := base{Hdr: hdr}

	switch hdr.MsgType {
	case TypeRegisterRequest:
		name, err := f.mustStr(tagUsername)
		if err != nil {
			return nil, err
		}
		budget, err := f.mustDecimal(tagBudget)
		if err != nil {
			return nil, err
		}
		return RegisterRequest{base: b, UserName: name, Budget: budget}, nil

	case TypeNewOrderSingle:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		side, err := f.mustInt(tagSide)
		if err != nil {
			return nil, err
		}
		qty, err := f.mustUint(tagOrderQty)
		if err != nil {
			return nil, err
		}
		price, err := f.mustDecimal(tagPrice)
		if err != nil {
			return nil, err
		}
		return NewOrderSingle{base: b, Product: product, Side: side, Quantity: qty, Price: price}, nil

	case TypeOrderCancelRequest:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		id, err := f.mustStr(tagClOrdID)
		if err != nil {
			return nil, err
		}
		return OrderCancelRequest{base: b, Product: product, OrderID: id}, nil

	case TypeOrderModifyRequestQty:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		id, err := f.mustStr(tagClOrdID)
		if err != nil {
			return nil, err
		}
		qty, err := f.mustUint(tagOrderQty)
		if err != nil {
			return nil, err
		}
		return OrderModifyRequestQty{base: b, Product: product, OrderID: id, NewQuantity: qty}, nil

	case TypeOrderStatusRequest:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		id, err := f.mustStr(tagClOrdID)
		if err != nil {
			return nil, err
		}
		return OrderStatusRequest{base: b, Product: product, OrderID: id}, nil

	case TypeMarketDataRequest:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		depth, err := f.mustInt(tagMarketDepth)
		if err != nil {
			return nil, err
		}
		return MarketDataRequest{base: b, Product: product, Depth: depth}, nil

	case TypeUserOrderStatusRequest:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		user, err := f.mustStr(tagPartyID)
		if err != nil {
			return nil, err
		}
		return UserOrderStatusRequest{base: b, Product: product, User: user}, nil

	case TypeUserBalanceRequest:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		user, err := f.mustStr(tagPartyID)
		if err != nil {
			return nil, err
		}
		return UserBalanceRequest{base: b, Product: product, User: user}, nil

	case TypeCaptureReportRequest:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		n, err := f.mustInt(tagTradeRequestID)
		if err != nil {
			return nil, err
		}
		return CaptureReportRequest{base: b, Product: product, HistoryLen: n}, nil

	case TypeInitializeLiquidityEngine:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		startingPrice, err := f.mustDecimal(tagPrice)
		if err != nil {
			return nil, err
		}
		spread, err := f.mustDecimal(tagSpread)
		if err != nil {
			return nil, err
		}
		numOrders, err := f.mustInt(tagNumOrders)
		if err != nil {
			return nil, err
		}
		orderSize, err := f.mustUint(tagOrderSize)
		if err != nil {
			return nil, err
		}
		return InitializeLiquidityEngineRequest{base: b, Product: product, StartingPrice: startingPrice, Spread: spread, NumOrders: numOrders, OrderSize: orderSize}, nil

	case TypeRegisterResponse:
		id, err := f.mustStr(tagAssignedUser)
		if err != nil {
			return nil, err
		}
		return RegisterResponse{base: b, UserID: id}, nil

	case TypeExecutionReport:
		id, err := f.mustStr(tagOrderID)
		if err != nil {
			return nil, err
		}
		status, err := f.mustInt(tagOrdStatus)
		if err != nil {
			return nil, err
		}
		er := ExecutionReport{base: b, OrderID: id, ExecStatus: ExecStatus(status)}
		if v, ok := f.str(tagSide); ok {
			side, err := strconv.Atoi(v)
			if err != nil {
				return nil, err
			}
			er.Side = &side
		}
		if v, ok := f.str(tagLeavesQty); ok {
			qty, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, err
			}
			er.Quantity = &qty
		}
		if v, ok := f.str(tagPrice); ok {
			price, err := decimal.NewFromString(v)
			if err != nil {
				return nil, err
			}
			er.Price = &price
		}
		return er, nil

	case TypeReject:
		id, err := f.mustStr(tagOrderID)
		if err != nil {
			return nil, err
		}
		reason, _ := f.str(tagRejectReason)
		return Reject{base: b, OrderID: id, Reason: reason}, nil

	case TypeMarketDataSnapshot:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		payload, err := f.mustStr(tagRawData)
		if err != nil {
			return nil, err
		}
		return MarketDataSnapshot{base: b, Product: product, Payload: []byte(payload)}, nil

	case TypeUserOrderStatus:
		product, err := f.mustStr(tagSymbol)
		if err != nil {
			return nil, err
		}
		payload, err := f.mustStr(tagRawData)
		if err != nil {
			return nil, err
		}
		return UserOrderStatus{base: b, Product: product, Payload: []byte(payload)}, nil

	case TypeCollateralReport:
		payload, err := f.mustStr(tagRawData)
		if err != nil {
			return nil, err
		}
		return CollateralReport{base: b, Payload: []byte(payload)}, nil

	case TypeTradeCaptureReport:
		payload, err := f.mustStr(tagRawData)
		if err != nil {
			return nil, err
		}
		return TradeCaptureReport{base: b, Payload: []byte(payload)}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown msg_type %q", hdr.MsgType)
	}
}
