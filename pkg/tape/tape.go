// Package tape implements the input/output tape boundary (spec.md §6
// "tapes ... byte buffer <-> ciphertext/plaintext EW array"): loading a
// byte buffer into the words a guest program's .inpdata section occupies,
// and reading the .outdata words back out as bytes, for both the
// encrypted cycle engine and the cleartext reference interpreter.
package tape

import (
	"encoding/binary"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/guest"
	"github.com/fhevm32/fhevm32/pkg/interp"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/ram"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// ErrInputSizeMismatch reuses spec.md §7's setup-time error kind: a tape
// buffer's word count does not match the guest's declared tape length.
var ErrInputSizeMismatch = fmt.Errorf("tape: buffer size does not match declared tape length")

func toWords(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("tape: buffer length %d not word-aligned", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return words, nil
}

func fromWords(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], w)
	}
	return b
}

// WriteEncrypted encrypts buf under sk and stores it at t's address in an
// already-allocated RAM (test/client-side setup only — production callers
// never hold sk; pkg/ram.WriteEA is the server-side equivalent once the
// bits are already ciphertext).
func WriteEncrypted(r *ram.RAM, t guest.Tape, buf []byte, b *keys.Bundle, sk *keys.SecretKey) error {
	words, err := toWords(buf)
	if err != nil {
		return err
	}
	if uint32(len(words)) != t.Len {
		return fmt.Errorf("tape: got %d words, want %d: %w", len(words), t.Len, ErrInputSizeMismatch)
	}
	for i, w := range words {
		ew := word.EncryptBits(r.Ring(), sk, w)
		if err := r.Write(t.Addr+uint32(i), ew, b, sk); err != nil {
			return fmt.Errorf("tape: write word %d: %w", i, err)
		}
	}
	return nil
}

// ReadEncrypted decrypts t's words back out of RAM into a byte buffer
// (client-only: the decrypting party must hold sk, spec.md §4.6 "decryption
// never happens on the hot path").
func ReadEncrypted(r *ram.RAM, t guest.Tape, b *keys.Bundle, sk *keys.SecretKey) ([]byte, error) {
	words := make([]uint32, t.Len)
	for i := range words {
		ew, err := r.Read(t.Addr+uint32(i), b, sk)
		if err != nil {
			return nil, fmt.Errorf("tape: read word %d: %w", i, err)
		}
		words[i] = ew.Decrypt(r.Ring(), sk)
	}
	return fromWords(words), nil
}

// WritePlain and ReadPlain are the cleartext reference interpreter's tape
// boundary, used by pkg/interp-based comparison runs (spec.md §8 property
// 1, semantic equivalence).
func WritePlain(s *interp.State, t guest.Tape, buf []byte) error {
	words, err := toWords(buf)
	if err != nil {
		return err
	}
	if uint32(len(words)) != t.Len {
		return fmt.Errorf("tape: got %d words, want %d: %w", len(words), t.Len, ErrInputSizeMismatch)
	}
	for i, w := range words {
		s.RAM[t.Addr+uint32(i)] = w
	}
	return nil
}

func ReadPlain(s *interp.State, t guest.Tape) []byte {
	words := make([]uint32, t.Len)
	copy(words, s.RAM[t.Addr:t.Addr+t.Len])
	return fromWords(words)
}
