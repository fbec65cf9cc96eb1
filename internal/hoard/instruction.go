package hoard

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Variant is the borsh enum index of an OracleInstruction.
type Variant uint8

const (
	VariantGrantWish  Variant = 0
	VariantRefillLamp Variant = 1
)

func (v Variant) String() string {
	switch v {
	case VariantGrantWish:
		return "GrantWish"
	case VariantRefillLamp:
		return "RefillLamp"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// OracleInstruction is one of GrantWish or RefillLamp.
type OracleInstruction interface {
	Variant() Variant
	MarshalWithEncoder(enc *bin.Encoder) error
}

// GrantWish pays Amount tokens for a wish judged at Score.
type GrantWish struct {
	Amount uint64
	Score  uint8
}

// RefillLamp adds Amount tokens to the hoard reserve.
type RefillLamp struct {
	Amount uint64
}

func (GrantWish) Variant() Variant  { return VariantGrantWish }
func (RefillLamp) Variant() Variant { return VariantRefillLamp }

func (g GrantWish) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(g.Amount, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint8(g.Score)
}

func (g *GrantWish) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if g.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	g.Score, err = dec.ReadUint8()
	return err
}

func (r RefillLamp) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(r.Amount, bin.LE)
}

func (r *RefillLamp) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	r.Amount, err = dec.ReadUint64(bin.LE)
	return err
}

// EncodeInstruction returns the variant index followed by the variant fields.
func EncodeInstruction(ix OracleInstruction) ([]byte, error) {
	if ix == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrInvalidInstruction)
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint8(uint8(ix.Variant())); err != nil {
		return nil, err
	}
	if err := ix.MarshalWithEncoder(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInstruction parses instruction data. Unknown variants, short data
// and trailing bytes are rejected.
func DecodeInstruction(data []byte) (OracleInstruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidInstruction)
	}
	dec := bin.NewBorshDecoder(data)
	tag, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	var (
		ix     OracleInstruction
		decErr error
	)
	switch Variant(tag) {
	case VariantGrantWish:
		var g GrantWish
		decErr = g.UnmarshalWithDecoder(dec)
		ix = g
	case VariantRefillLamp:
		var r RefillLamp
		decErr = r.UnmarshalWithDecoder(dec)
		ix = r
	default:
		return nil, fmt.Errorf("%w: unknown variant %d", ErrInvalidInstruction, tag)
	}

	if decErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInstruction, Variant(tag), decErr)
	}
	if dec.Remaining() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidInstruction, dec.Remaining())
	}
	return ix, nil
}

// NewInstruction builds a transaction instruction for the hoard program.
func NewInstruction(programID, hoardAccount, signer solana.PublicKey, ix OracleInstruction) (solana.Instruction, error) {
	data, err := EncodeInstruction(ix)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(hoardAccount).WRITE(),
		solana.Meta(signer).SIGNER(),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}
