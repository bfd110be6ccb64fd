package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/kysee/rollup-statekeeper/types"
)

// PubDataConfig carries the bit widths the pub-data bit-packer and
// decoder need: account/token/order-slot tree heights and the packed
// amount width (spec §6 "Pub-data bit schema").
type PubDataConfig struct {
	HAcc      uint
	HBal      uint
	HOrd      uint
	AmountLen int
}

const (
	orderIDBits = 32
	ayBits      = 254
	signBits    = 1
)

func (c PubDataConfig) amountBits() int { return c.AmountLen * 8 }

func (c PubDataConfig) codec() *types.AmountCodec {
	return types.NewAmountCodec(c.AmountLen)
}

// writeAmount packs a raw balance-scale field element as its compact
// {significand, exponent} encoding (spec §4.E `to_encoded_int`), which
// is what actually fits in AMOUNT_LEN bytes.
func (w *bitWriter) writeAmount(codec *types.AmountCodec, v types.F, n int) {
	amt, err := codec.FromScaledInt(types.FToBig(v))
	if err != nil {
		panic(fmt.Sprintf("pub-data: amount %s does not fit the configured codec: %v", types.FToDecimalString(v), err))
	}
	w.writeBig(codec.ToEncodedInt(amt), n)
}

func (r *bitReader) readAmount(codec *types.AmountCodec, n int) (types.F, error) {
	raw, err := r.readBig(n)
	if err != nil {
		return types.ZeroF(), err
	}
	amt := codec.FromEncodedBigint(raw)
	return amt.ToFr(), nil
}

// bitWriter accumulates a big-endian bitstream, MSB first, zero-padded
// to a byte boundary on Bytes().
type bitWriter struct {
	bits []bool
}

func (w *bitWriter) writeBig(val *big.Int, n int) {
	for i := n - 1; i >= 0; i-- {
		w.bits = append(w.bits, val.Bit(i) == 1)
	}
}

func (w *bitWriter) writeUint(v uint64, n int) {
	w.writeBig(new(big.Int).SetUint64(v), n)
}

func (w *bitWriter) writeF(v types.F, n int) {
	w.writeBig(types.FToBig(v), n)
}

func (w *bitWriter) Bytes() []byte {
	bits := w.bits
	for len(bits)%8 != 0 {
		bits = append(bits, false)
	}
	out := make([]byte, len(bits)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// bitReader is the inverse of bitWriter.
type bitReader struct {
	bits []bool
	pos  int
}

func newBitReader(data []byte) *bitReader {
	bits := make([]bool, len(data)*8)
	for i, b := range data {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = b&(1<<uint(7-j)) != 0
		}
	}
	return &bitReader{bits: bits}
}

func (r *bitReader) readBig(n int) (*big.Int, error) {
	if r.pos+n > len(r.bits) {
		return nil, fmt.Errorf("pub-data: truncated stream, need %d more bits at offset %d of %d", n, r.pos, len(r.bits))
	}
	out := new(big.Int)
	for i := 0; i < n; i++ {
		out.Lsh(out, 1)
		if r.bits[r.pos] {
			out.SetBit(out, 0, 1)
		}
		r.pos++
	}
	return out, nil
}

func (r *bitReader) readUint(n int) (uint64, error) {
	v, err := r.readBig(n)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (r *bitReader) readF(n int) (types.F, error) {
	v, err := r.readBig(n)
	if err != nil {
		return types.ZeroF(), err
	}
	return types.BigToF(v), nil
}

// EncodeBlockPubData bit-packs a forged block's transactions into the
// minimal per-tx-type stream of spec §6 "Pub-data bit schema",
// zero-padded to a byte boundary.
func EncodeBlockPubData(txsType []types.TxType, txs []types.Payload, cfg PubDataConfig) []byte {
	w := &bitWriter{}
	codec := cfg.codec()
	for i, txType := range txsType {
		p := txs[i]
		switch txType {
		case types.TxNop:
			w.writeUint(0, int(cfg.HAcc))
			w.writeUint(0, int(cfg.HAcc))
			w.writeUint(0, int(cfg.HBal))
			w.writeUint(0, cfg.amountBits())
		case types.TxDeposit:
			w.writeF(p[types.IdxAccountID1], int(cfg.HAcc))
			w.writeF(p[types.IdxAccountID1], int(cfg.HAcc))
			w.writeF(p[types.IdxTokenID], int(cfg.HBal))
			w.writeAmount(codec, p[types.IdxAmount], cfg.amountBits())
		case types.TxTransfer, types.TxWithdraw:
			w.writeF(p[types.IdxAccountID1], int(cfg.HAcc))
			w.writeF(p[types.IdxAccountID2], int(cfg.HAcc))
			w.writeF(p[types.IdxTokenID], int(cfg.HBal))
			w.writeAmount(codec, p[types.IdxAmount], cfg.amountBits())
		case types.TxSpotTrade:
			w.writeF(p[types.IdxAccountID1], int(cfg.HAcc))
			w.writeF(p[types.IdxAccountID2], int(cfg.HAcc))
			w.writeF(p[types.IdxTokenID], int(cfg.HBal))
			w.writeF(p[types.IdxTokenID2], int(cfg.HBal))
			w.writeAmount(codec, p[types.IdxAmount], cfg.amountBits())
			w.writeAmount(codec, p[types.IdxAmount2], cfg.amountBits())
			w.writeF(p[types.IdxOrder1Pos], int(cfg.HOrd))
			w.writeF(p[types.IdxOrder2Pos], int(cfg.HOrd))
			w.writeF(p[types.IdxOrder1ID], orderIDBits)
			w.writeF(p[types.IdxOrder2ID], orderIDBits)
		case types.TxUserRegister:
			w.writeF(p[types.IdxAccountID1], int(cfg.HAcc))
			w.writeF(p[types.IdxSign2], signBits)
			w.writeF(p[types.IdxAy2], ayBits)
		case types.TxPlaceOrder:
			// Not part of spec §6's enumerated schema (place-order is a
			// spec §9 supplemented feature whose wire layout the
			// companion circuit does not define here); packed in the
			// same shape as spot trade's single-order fields so the
			// decoder can still round-trip it.
			w.writeF(p[types.IdxAccountID1], int(cfg.HAcc))
			w.writeF(p[types.IdxTokenID], int(cfg.HBal))
			w.writeF(p[types.IdxTokenID2], int(cfg.HBal))
			w.writeAmount(codec, p[types.IdxAmount], cfg.amountBits())
			w.writeAmount(codec, p[types.IdxAmount2], cfg.amountBits())
			w.writeF(p[types.IdxOrder1Pos], int(cfg.HOrd))
			w.writeF(p[types.IdxOrder1ID], orderIDBits)
		}
	}
	return w.Bytes()
}

// DecodedTx is the minimal shape the pub-data decoder recovers for one
// transaction — enough to replay it through the witness generator
// (spec §4.H).
type DecodedTx struct {
	TxType                 types.TxType
	AccountID1, AccountID2 uint32
	TokenID, TokenID2      uint32
	Amount, Amount2        types.F
	OrderPos1, OrderPos2   uint32
	OrderID1, OrderID2     uint32
	Sign, Ay               types.F
}

// DecodeBlockPubData is the inverse of EncodeBlockPubData: given the
// raw bytes and the tx-type sequence carried alongside them in the
// block record, it walks the bitstream and reconstructs each
// transaction's minimal shape (spec §4.H "Pub-data decoder").
func DecodeBlockPubData(data []byte, txsType []types.TxType, cfg PubDataConfig) ([]DecodedTx, error) {
	r := newBitReader(data)
	codec := cfg.codec()
	out := make([]DecodedTx, len(txsType))
	for i, txType := range txsType {
		d := DecodedTx{TxType: txType}
		var err error
		switch txType {
		case types.TxNop:
			_, err = r.readUint(int(cfg.HAcc))
			if err == nil {
				_, err = r.readUint(int(cfg.HAcc))
			}
			if err == nil {
				_, err = r.readUint(int(cfg.HBal))
			}
			if err == nil {
				_, err = r.readUint(cfg.amountBits())
			}
		case types.TxDeposit:
			err = readAll(err,
				readInto(r, int(cfg.HAcc), &d.AccountID1),
				readInto(r, int(cfg.HAcc), &d.AccountID2),
				readInto(r, int(cfg.HBal), &d.TokenID),
			)
			if err == nil {
				d.Amount, err = r.readAmount(codec, cfg.amountBits())
			}
		case types.TxTransfer, types.TxWithdraw:
			err = readAll(err,
				readInto(r, int(cfg.HAcc), &d.AccountID1),
				readInto(r, int(cfg.HAcc), &d.AccountID2),
				readInto(r, int(cfg.HBal), &d.TokenID),
			)
			if err == nil {
				d.Amount, err = r.readAmount(codec, cfg.amountBits())
			}
		case types.TxSpotTrade:
			err = readAll(err,
				readInto(r, int(cfg.HAcc), &d.AccountID1),
				readInto(r, int(cfg.HAcc), &d.AccountID2),
				readInto(r, int(cfg.HBal), &d.TokenID),
				readInto(r, int(cfg.HBal), &d.TokenID2),
			)
			if err == nil {
				d.Amount, err = r.readAmount(codec, cfg.amountBits())
			}
			if err == nil {
				d.Amount2, err = r.readAmount(codec, cfg.amountBits())
			}
			if err == nil {
				err = readAll(nil,
					readInto(r, int(cfg.HOrd), &d.OrderPos1),
					readInto(r, int(cfg.HOrd), &d.OrderPos2),
					readInto(r, orderIDBits, &d.OrderID1),
					readInto(r, orderIDBits, &d.OrderID2),
				)
			}
		case types.TxUserRegister:
			err = readInto(r, int(cfg.HAcc), &d.AccountID1)
			if err == nil {
				d.Sign, err = r.readF(signBits)
			}
			if err == nil {
				d.Ay, err = r.readF(ayBits)
			}
		case types.TxPlaceOrder:
			err = readAll(err,
				readInto(r, int(cfg.HAcc), &d.AccountID1),
				readInto(r, int(cfg.HBal), &d.TokenID),
				readInto(r, int(cfg.HBal), &d.TokenID2),
			)
			if err == nil {
				d.Amount, err = r.readAmount(codec, cfg.amountBits())
			}
			if err == nil {
				d.Amount2, err = r.readAmount(codec, cfg.amountBits())
			}
			if err == nil {
				err = readAll(nil,
					readInto(r, int(cfg.HOrd), &d.OrderPos1),
					readInto(r, orderIDBits, &d.OrderID1),
				)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("pub-data: decoding tx %d (%s): %w", i, txType, err)
		}
		out[i] = d
	}
	return out, nil
}

func readInto(r *bitReader, n int, dst *uint32) error {
	v, err := r.readUint(n)
	if err != nil {
		return err
	}
	*dst = uint32(v)
	return nil
}

func readAll(first error, rest ...error) error {
	if first != nil {
		return first
	}
	for _, e := range rest {
		if e != nil {
			return e
		}
	}
	return nil
}

// ErrOrderUnrecoverable is returned by Recover when a spot trade's
// pub-data refers to an order slot that was never independently placed
// (gs has no record of it, e.g. from a prior PlaceOrder) and therefore carries
// no recorded sell/buy terms: the pub-data bit-packing carries only an
// order's position and id, not its terms, so a brand-new order created
// inline by a trade (spec §9 "partially specified upstream", mirroring
// the original's pub_data.rs TODO) cannot be replayed from pub-data
// alone. Recovering such a block requires an out-of-band source for
// that order's terms; this module does not invent one.
var ErrOrderUnrecoverable = errors.New("pub-data: spot trade references an order with no recorded terms")

// Recover (the "recoveror" of spec §4.H) replays decoded pub-data
// transactions onto gs via a witness generator, reproducing the same
// root the forger computed — provided gs already reflects any
// L1-originated state (initial L2-key deposits) the pub-data cannot
// carry in full. Returns ErrOrderUnrecoverable (category-1, a
// decode-boundary error rather than a panic) if a spot trade needs an
// order definition pub-data doesn't carry.
func Recover(gs *GlobalState, verifier types.SignatureVerifier, decoded []DecodedTx) (types.F, error) {
	wg := NewWitnessGenerator(gs, verifier)
	for _, d := range decoded {
		switch d.TxType {
		case types.TxNop:
			wg.Nop()
		case types.TxDeposit:
			wg.Deposit(types.DepositTx{AccountID: d.AccountID1, TokenID: d.TokenID, Amount: d.Amount})
		case types.TxTransfer:
			wg.Transfer(types.TransferTx{From: d.AccountID1, To: d.AccountID2, TokenID: d.TokenID, Amount: d.Amount})
		case types.TxWithdraw:
			wg.Withdraw(types.WithdrawTx{AccountID: d.AccountID1, TokenID: d.TokenID, Amount: d.Amount})
		case types.TxSpotTrade:
			if !gs.OrderIsKnown(d.AccountID1, d.OrderID1) || !gs.OrderIsKnown(d.AccountID2, d.OrderID2) {
				return types.F{}, fmt.Errorf("%w (account %d order %d, account %d order %d)",
					ErrOrderUnrecoverable, d.AccountID1, d.OrderID1, d.AccountID2, d.OrderID2)
			}
			wg.SpotTrade(types.SpotTradeTx{
				Order1AccountID: d.AccountID1, Order2AccountID: d.AccountID2,
				TokenID1to2: d.TokenID, TokenID2to1: d.TokenID2,
				Amount1to2: d.Amount, Amount2to1: d.Amount2,
				Order1ID: d.OrderID1, Order2ID: d.OrderID2,
			})
		case types.TxUserRegister:
			wg.UserRegister(types.UserRegisterTx{AccountID: d.AccountID1, Sign: d.Sign, Ay: d.Ay})
		case types.TxPlaceOrder:
			wg.PlaceOrder(types.PlaceOrderTx{
				AccountID: d.AccountID1, TokenIDSell: d.TokenID, TokenIDBuy: d.TokenID2,
				AmountSell: d.Amount, AmountBuy: d.Amount2,
			})
		}
	}
	return gs.Root(), nil
}
