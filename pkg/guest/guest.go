// Package guest loads a compiled RV32I guest program (spec.md §6 "guest
// ELF" boundary) into a flat instruction image plus the two tape section
// addresses the cycle engine's input/output convention uses. This is the
// one ambient concern kept on the standard library rather than a
// third-party parser (see SPEC_FULL.md §4.8): debug/elf is itself Go's
// canonical ELF reader, the same role a dedicated parser plays in the
// sibling loaders the retrieval pack shows.
package guest

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// ErrInputSizeMismatch reuses spec.md §7's setup-time error kind: raised
// here when a guest ELF's text segment does not fit the configured
// addressable RAM.
var ErrInputSizeMismatch = fmt.Errorf("guest: program image exceeds addressable memory")

// Tape describes one named data section's location in the flat RAM
// address space, in words (spec.md §6 "tapes ... a fixed RAM offset").
type Tape struct {
	Addr uint32 // word address, not byte offset
	Len  uint32 // length in words
}

// Image is a loaded guest program: the instruction words destined for
// ROM, plus the input/output tape locations within the shared data RAM.
type Image struct {
	Text   []uint32
	Input  Tape
	Output Tape
}

// Load parses a little-endian RV32I ELF and extracts its .text section as
// a word-addressed instruction image, plus the .inpdata/.outdata section
// addresses a guest program's linker script places its input/output tape
// at (spec.md §6). Sections are optional: a guest with no .inpdata/.outdata
// simply gets a zero-length Tape.
func Load(raw []byte, maxWords int) (Image, error) {
	f, err := elf.NewFile(newReaderAt(raw))
	if err != nil {
		return Image{}, fmt.Errorf("guest: parse elf: %w", err)
	}
	defer f.Close()

	text := f.Section(".text")
	if text == nil {
		return Image{}, fmt.Errorf("guest: no .text section")
	}
	data, err := text.Data()
	if err != nil {
		return Image{}, fmt.Errorf("guest: read .text: %w", err)
	}
	words, err := toWords(data)
	if err != nil {
		return Image{}, err
	}
	if len(words) > maxWords {
		return Image{}, fmt.Errorf("guest: %d words exceeds %d: %w", len(words), maxWords, ErrInputSizeMismatch)
	}

	img := Image{Text: words}
	if s := f.Section(".inpdata"); s != nil {
		img.Input = Tape{Addr: uint32(s.Addr) / 4, Len: uint32(s.Size) / 4}
	}
	if s := f.Section(".outdata"); s != nil {
		img.Output = Tape{Addr: uint32(s.Addr) / 4, Len: uint32(s.Size) / 4}
	}
	return img, nil
}

func toWords(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("guest: .text length %d not word-aligned", len(data))
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out, nil
}

// readerAt adapts a byte slice to io.ReaderAt, the shape debug/elf.NewFile
// requires.
type readerAt struct{ b []byte }

func newReaderAt(b []byte) *readerAt { return &readerAt{b: b} }

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.b)) {
		return 0, fmt.Errorf("guest: read offset %d out of range", off)
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, fmt.Errorf("guest: short read at offset %d", off)
	}
	return n, nil
}
