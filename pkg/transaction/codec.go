package transaction

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Canonical encoding: every integer occupies one big-endian 8 byte word and every
// variable length byte string is zero padded to a word boundary.

const (
	wordSize = 8

	// transactionTypeScript is the only transaction type this package builds
	transactionTypeScript = 0
)

// ErrInvalidEncoding is returned when bytes do not decode to a script transaction
var ErrInvalidEncoding = errors.New("invalid transaction encoding")

type encoder struct {
	buf []byte
}

func (e *encoder) word(v uint64) {
	var w [wordSize]byte
	binary.BigEndian.PutUint64(w[:], v)
	e.buf = append(e.buf, w[:]...)
}

func (e *encoder) fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) padded(b []byte) {
	e.buf = append(e.buf, b...)
	if rem := len(b) % wordSize; rem != 0 {
		e.buf = append(e.buf, make([]byte, wordSize-rem)...)
	}
}

// Encode serializes the request to its canonical byte form
func (r *ScriptRequest) Encode() []byte {
	e := &encoder{}
	e.word(transactionTypeScript)
	e.word(r.GasPrice)
	e.word(r.GasLimit)
	e.word(uint64(r.Maturity))
	e.word(uint64(len(r.Script)))
	e.word(uint64(len(r.ScriptData)))
	e.word(uint64(len(r.Inputs)))
	e.word(uint64(len(r.Outputs)))
	e.word(uint64(len(r.Witnesses)))
	e.padded(r.Script)
	e.padded(r.ScriptData)

	for _, in := range r.Inputs {
		e.word(uint64(InputTypeCoin))
		e.fixed(in.UtxoId.TxId[:])
		e.word(uint64(in.UtxoId.OutputIndex))
		e.fixed(in.Owner[:])
		e.word(in.Amount)
		e.fixed(in.AssetId[:])
		e.word(uint64(in.TxPointer.BlockHeight))
		e.word(uint64(in.TxPointer.TxIndex))
		e.word(uint64(in.WitnessIndex))
		e.word(in.PredicateGasUsed)
		e.word(uint64(len(in.Predicate)))
		e.word(uint64(len(in.PredicateData)))
		e.padded(in.Predicate)
		e.padded(in.PredicateData)
	}

	for _, out := range r.Outputs {
		e.word(uint64(out.Type))
		e.fixed(out.To[:])
		e.word(out.Amount)
		e.fixed(out.AssetId[:])
	}

	for _, w := range r.Witnesses {
		e.word(uint64(len(w)))
		e.padded(w)
	}
	return e.buf
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s at offset %d", ErrInvalidEncoding, fmt.Sprintf(format, args...), d.off)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.fail("need %d bytes, have %d", n, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) word() uint64 {
	b := d.take(wordSize)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) bounded(max uint64, what string) uint64 {
	v := d.word()
	if v > max {
		d.fail("%s %d exceeds %d", what, v, max)
		return 0
	}
	return v
}

// length reads a byte string length that must fit in the remaining buffer
func (d *decoder) length(what string) int {
	n := d.word()
	if d.err == nil && n > uint64(len(d.buf)-d.off) {
		d.fail("%s length %d exceeds remaining input", what, n)
		return 0
	}
	return int(n)
}

func (d *decoder) fixed(dst []byte) {
	if b := d.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

// padded reads n bytes plus padding. Zero length yields nil when nilIfEmpty is set.
func (d *decoder) padded(n int, nilIfEmpty bool) []byte {
	if n == 0 && nilIfEmpty {
		return nil
	}
	padding := 0
	if rem := n % wordSize; rem != 0 {
		padding = wordSize - rem
	}
	b := d.take(n + padding)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b[:n])
	return out
}

// Decode parses the canonical encoding produced by Encode
func Decode(data []byte) (*ScriptRequest, error) {
	d := &decoder{buf: data}

	if txType := d.word(); d.err == nil && txType != transactionTypeScript {
		return nil, fmt.Errorf("%w: unsupported transaction type %d", ErrInvalidEncoding, txType)
	}

	r := &ScriptRequest{}
	r.GasPrice = d.word()
	r.GasLimit = d.word()
	r.Maturity = uint32(d.bounded(0xffffffff, "maturity"))
	scriptLen := d.length("script")
	scriptDataLen := d.length("script data")
	inputCount := d.length("input count")
	outputCount := d.length("output count")
	witnessCount := d.length("witness count")
	r.Script = d.padded(scriptLen, false)
	r.ScriptData = d.padded(scriptDataLen, false)
	if d.err != nil {
		return nil, d.err
	}

	if inputCount > 0 {
		r.Inputs = make([]InputCoin, 0, inputCount)
	}
	for i := 0; i < inputCount && d.err == nil; i++ {
		var in InputCoin
		if inputType := d.word(); d.err == nil && InputType(inputType) != InputTypeCoin {
			d.fail("unsupported input type %d", inputType)
			break
		}
		d.fixed(in.UtxoId.TxId[:])
		in.UtxoId.OutputIndex = uint16(d.bounded(0xffff, "output index"))
		d.fixed(in.Owner[:])
		in.Amount = d.word()
		d.fixed(in.AssetId[:])
		in.TxPointer.BlockHeight = uint32(d.bounded(0xffffffff, "block height"))
		in.TxPointer.TxIndex = uint16(d.bounded(0xffff, "tx index"))
		in.WitnessIndex = uint16(d.bounded(0xffff, "witness index"))
		in.PredicateGasUsed = d.word()
		predicateLen := d.length("predicate")
		predicateDataLen := d.length("predicate data")
		in.Predicate = d.padded(predicateLen, true)
		in.PredicateData = d.padded(predicateDataLen, true)
		r.Inputs = append(r.Inputs, in)
	}

	if outputCount > 0 {
		r.Outputs = make([]Output, 0, outputCount)
	}
	for i := 0; i < outputCount && d.err == nil; i++ {
		var out Output
		switch t := OutputType(d.bounded(0xff, "output type")); t {
		case OutputTypeCoin, OutputTypeChange, OutputTypeVariable:
			out.Type = t
		default:
			d.fail("unsupported output type %d", t)
		}
		d.fixed(out.To[:])
		out.Amount = d.word()
		d.fixed(out.AssetId[:])
		r.Outputs = append(r.Outputs, out)
	}

	if witnessCount > 0 {
		r.Witnesses = make([][]byte, 0, witnessCount)
	}
	for i := 0; i < witnessCount && d.err == nil; i++ {
		n := d.length("witness")
		r.Witnesses = append(r.Witnesses, d.padded(n, false))
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidEncoding, len(d.buf)-d.off)
	}
	return r, nil
}
