// Package hoard defines the on-chain hoard account, the oracle instruction set
// and the processor that applies instructions to hoard state.
package hoard

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// HoardStateSize is the borsh encoded size of HoardState.
const HoardStateSize = 1 + solana.PublicKeyLength + 8

// HoardState is the persistent account record of the hoard program.
type HoardState struct {
	IsInitialized bool
	Authority     solana.PublicKey
	TotalPayouts  uint64
}

func (s HoardState) MarshalWithEncoder(enc *bin.Encoder) error {
	var flag uint8
	if s.IsInitialized {
		flag = 1
	}
	if err := enc.WriteUint8(flag); err != nil {
		return err
	}
	if err := enc.WriteBytes(s.Authority[:], false); err != nil {
		return err
	}
	return enc.WriteUint64(s.TotalPayouts, bin.LE)
}

func (s *HoardState) UnmarshalWithDecoder(dec *bin.Decoder) error {
	flag, err := dec.ReadUint8()
	if err != nil {
		return fmt.Errorf("read is_initialized: %w", err)
	}
	switch flag {
	case 0:
		s.IsInitialized = false
	case 1:
		s.IsInitialized = true
	default:
		return fmt.Errorf("%w: is_initialized byte %d", ErrInvalidAccountData, flag)
	}

	key, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return fmt.Errorf("read authority: %w", err)
	}
	s.Authority = solana.PublicKeyFromBytes(key)

	if s.TotalPayouts, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("read total_payouts: %w", err)
	}
	return nil
}

// MarshalBinary returns the 41 byte account layout.
func (s HoardState) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(HoardStateSize)
	if err := s.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes exactly HoardStateSize bytes.
func (s *HoardState) UnmarshalBinary(data []byte) error {
	if len(data) < HoardStateSize {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrAccountDataTooSmall, len(data), HoardStateSize)
	}
	if len(data) > HoardStateSize {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidAccountData, len(data)-HoardStateSize)
	}
	return s.UnmarshalWithDecoder(bin.NewBorshDecoder(data))
}

// DecodeState decodes an account's data into a HoardState.
func DecodeState(data []byte) (HoardState, error) {
	var s HoardState
	if err := s.UnmarshalBinary(data); err != nil {
		return HoardState{}, err
	}
	return s, nil
}

// Hoard is the hoard account together with the oil reserve it pays out of.
type Hoard struct {
	State   HoardState
	Reserve uint64
}
