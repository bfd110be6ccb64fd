package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kysee/rollup-statekeeper/types"
)

// ErrNoEvent is returned by an EventSource when nothing is pending
// right now and the caller should simply poll again — distinct from a
// genuine transient I/O error (spec §7 category 5), which the caller
// logs but otherwise treats the same way.
var ErrNoEvent = errors.New("adapter: no event ready")

// EventSource is the message-ingest collaborator of spec §5
// ("the message ingest loop (blocking read from external source)").
// Next returns the next pending event, ErrNoEvent when nothing is
// pending right now (FileEventSource returns it at end of file rather
// than waiting), or an error. The returned value is one of this
// package's Event types.
type EventSource interface {
	Next(ctx context.Context) (any, error)
}

// wireEvent is the on-disk/on-wire envelope: a discriminant plus the
// matching typed payload, mirroring the inbound schema of spec §6
// ("Typed records for user-registration, deposit ... order events
// ... and trade events").
type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Field elements travel on the wire as decimal strings, the same
// convention spec §6 fixes for the outbound block record ("decimal-
// string field elements"), since gnark-crypto's field element type has
// no guaranteed JSON encoding of its own.
func decimalToF(s string) (types.F, error) {
	if s == "" {
		return types.ZeroF(), nil
	}
	return types.FFromDecimal(s)
}

type wireSignature struct {
	Hash string `json:"hash"`
	S    string `json:"s"`
	R8x  string `json:"r8x"`
	R8y  string `json:"r8y"`
}

func (w wireSignature) decode() (types.Signature, error) {
	var sig types.Signature
	var err error
	if sig.Hash, err = decimalToF(w.Hash); err != nil {
		return sig, fmt.Errorf("sig.hash: %w", err)
	}
	if sig.S, err = decimalToF(w.S); err != nil {
		return sig, fmt.Errorf("sig.s: %w", err)
	}
	if sig.R8x, err = decimalToF(w.R8x); err != nil {
		return sig, fmt.Errorf("sig.r8x: %w", err)
	}
	if sig.R8y, err = decimalToF(w.R8y); err != nil {
		return sig, fmt.Errorf("sig.r8y: %w", err)
	}
	return sig, nil
}

type wireL2Key struct {
	Sign    string `json:"sign"`
	Ay      string `json:"ay"`
	EthAddr string `json:"ethAddr"`
}

func (w *wireL2Key) decode() (*types.L2Key, error) {
	if w == nil {
		return nil, nil
	}
	sign, err := decimalToF(w.Sign)
	if err != nil {
		return nil, fmt.Errorf("l2key.sign: %w", err)
	}
	ay, err := decimalToF(w.Ay)
	if err != nil {
		return nil, fmt.Errorf("l2key.ay: %w", err)
	}
	ethAddr, err := decimalToF(w.EthAddr)
	if err != nil {
		return nil, fmt.Errorf("l2key.ethAddr: %w", err)
	}
	return &types.L2Key{Sign: sign, Ay: ay, EthAddr: ethAddr}, nil
}

type wireOrder struct {
	AccountID   uint32 `json:"accountId"`
	OrderID     uint32 `json:"orderId"`
	TokenIDSell uint32 `json:"tokenIdSell"`
	TokenIDBuy  uint32 `json:"tokenIdBuy"`
	AmountSell  string `json:"amountSell"`
	AmountBuy   string `json:"amountBuy"`
	Sig         wireSignature `json:"sig"`
	Offset      uint64 `json:"offset"`
}

func (w wireOrder) decode() (OrderPutEvent, error) {
	var ev OrderPutEvent
	var err error
	ev.AccountID, ev.OrderID = w.AccountID, w.OrderID
	ev.TokenIDSell, ev.TokenIDBuy = w.TokenIDSell, w.TokenIDBuy
	if ev.AmountSell, err = decimalToF(w.AmountSell); err != nil {
		return ev, fmt.Errorf("amountSell: %w", err)
	}
	if ev.AmountBuy, err = decimalToF(w.AmountBuy); err != nil {
		return ev, fmt.Errorf("amountBuy: %w", err)
	}
	if ev.Sig, err = w.Sig.decode(); err != nil {
		return ev, err
	}
	ev.Offset = Offset(w.Offset)
	return ev, nil
}

type wireUserRegistration struct {
	AccountID uint32 `json:"accountId"`
	Sign      string `json:"sign"`
	Ay        string `json:"ay"`
	EthAddr   string `json:"ethAddr"`
	Offset    uint64 `json:"offset"`
}

type wireDeposit struct {
	AccountID    uint32     `json:"accountId"`
	TokenID      uint32     `json:"tokenId"`
	Amount       string     `json:"amount"`
	PriorBalance string     `json:"priorBalance"`
	L2Key        *wireL2Key `json:"l2key"`
	Offset       uint64     `json:"offset"`
}

type wireOrderFinish struct {
	AccountID uint32 `json:"accountId"`
	OrderID   uint32 `json:"orderId"`
	Offset    uint64 `json:"offset"`
}

type wireTrade struct {
	Order1AccountID uint32 `json:"order1AccountId"`
	Order2AccountID uint32 `json:"order2AccountId"`
	TokenID1to2     uint32 `json:"tokenId1to2"`
	TokenID2to1     uint32 `json:"tokenId2to1"`
	Amount1to2      string `json:"amount1to2"`
	Amount2to1      string `json:"amount2to1"`
	Order1ID        uint32 `json:"order1Id"`
	Order2ID        uint32 `json:"order2Id"`

	Order1IsNew bool      `json:"order1IsNew"`
	Order1      wireOrder `json:"order1"`
	Order2IsNew bool      `json:"order2IsNew"`
	Order2      wireOrder `json:"order2"`

	VerifySignatures bool   `json:"verifySignatures"`
	Offset           uint64 `json:"offset"`
}

// FileEventSource reads newline-delimited JSON events from a local
// file, one wireEvent per line, grounded on the teacher's
// provers/file_fetcher.go FileFetcher (read-and-decode-JSON), adapted
// here to a line-oriented stream so a single file can carry an ordered
// sequence of events instead of one snapshot.
type FileEventSource struct {
	path    string
	scanner *bufio.Scanner
	file    *os.File
}

// NewFileEventSource opens path for line-by-line reading.
func NewFileEventSource(path string) (*FileEventSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("adapter: open %s: %w", path, err)
	}
	return &FileEventSource{path: path, file: f, scanner: bufio.NewScanner(f)}, nil
}

func (s *FileEventSource) Close() error {
	return s.file.Close()
}

// Next decodes the next line as a wireEvent and returns its typed
// payload. Returns ErrNoEvent once the file is exhausted.
func (s *FileEventSource) Next(ctx context.Context) (any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("adapter: read %s: %w", s.path, err)
		}
		return nil, ErrNoEvent
	}

	var we wireEvent
	if err := json.Unmarshal(s.scanner.Bytes(), &we); err != nil {
		return nil, fmt.Errorf("adapter: decode event envelope: %w", err)
	}
	return decodeWireEvent(we)
}

func decodeWireEvent(we wireEvent) (any, error) {
	switch we.Type {
	case "user_registration":
		var w wireUserRegistration
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode user_registration: %w", err)
		}
		sign, err := decimalToF(w.Sign)
		if err != nil {
			return nil, err
		}
		ay, err := decimalToF(w.Ay)
		if err != nil {
			return nil, err
		}
		ethAddr, err := decimalToF(w.EthAddr)
		if err != nil {
			return nil, err
		}
		return UserRegistrationEvent{
			AccountID: w.AccountID, Sign: sign, Ay: ay, EthAddr: ethAddr, Offset: Offset(w.Offset),
		}, nil

	case "deposit":
		var w wireDeposit
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode deposit: %w", err)
		}
		amount, err := decimalToF(w.Amount)
		if err != nil {
			return nil, err
		}
		prior, err := decimalToF(w.PriorBalance)
		if err != nil {
			return nil, err
		}
		l2key, err := w.L2Key.decode()
		if err != nil {
			return nil, err
		}
		return DepositEvent{
			AccountID: w.AccountID, TokenID: w.TokenID, Amount: amount, PriorBalance: prior,
			L2Key: l2key, Offset: Offset(w.Offset),
		}, nil

	case "order_put":
		var w wireOrder
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode order_put: %w", err)
		}
		return w.decode()

	case "order_update":
		var w wireOrder
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode order_update: %w", err)
		}
		ev, err := w.decode()
		return OrderUpdateEvent(ev), err

	case "order_finish":
		var w wireOrderFinish
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode order_finish: %w", err)
		}
		return OrderFinishEvent{AccountID: w.AccountID, OrderID: w.OrderID, Offset: Offset(w.Offset)}, nil

	case "order_expired":
		var w wireOrderFinish
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode order_expired: %w", err)
		}
		return OrderExpiredEvent{AccountID: w.AccountID, OrderID: w.OrderID, Offset: Offset(w.Offset)}, nil

	case "trade":
		var w wireTrade
		if err := json.Unmarshal(we.Data, &w); err != nil {
			return nil, fmt.Errorf("adapter: decode trade: %w", err)
		}
		amount1to2, err := decimalToF(w.Amount1to2)
		if err != nil {
			return nil, err
		}
		amount2to1, err := decimalToF(w.Amount2to1)
		if err != nil {
			return nil, err
		}
		order1, err := w.Order1.decode()
		if err != nil {
			return nil, err
		}
		order2, err := w.Order2.decode()
		if err != nil {
			return nil, err
		}
		return TradeEvent{
			Order1AccountID: w.Order1AccountID, Order2AccountID: w.Order2AccountID,
			TokenID1to2: w.TokenID1to2, TokenID2to1: w.TokenID2to1,
			Amount1to2: amount1to2, Amount2to1: amount2to1,
			Order1ID: w.Order1ID, Order2ID: w.Order2ID,
			Order1IsNew: w.Order1IsNew, Order1: order1,
			Order2IsNew: w.Order2IsNew, Order2: order2,
			VerifySignatures: w.VerifySignatures, Offset: Offset(w.Offset),
		}, nil

	default:
		return nil, fmt.Errorf("adapter: unrecognized event type %q", we.Type)
	}
}
