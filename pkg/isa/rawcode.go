package isa

// RawWidth is the number of instruction-word bits the encrypted decoder
// (pkg/cycle fetch step) needs to distinguish every supported opcode: the
// 7-bit RISC-V opcode field, the 3-bit funct3 field, and funct7's bit 5
// (the only funct7 bit any supported instruction tests). This is a pure
// bit-slice of the fetched instruction word — no circuit evaluation is
// needed to produce it, only selecting which ciphertext bits to look at.
const RawWidth = 11

// RawCode returns the (opcode, funct3, funct7-bit-5) pattern that
// identifies op, encoded as opcode | funct3<<7 | funct7b5<<10 — the same
// pattern Decode's switch statements test, just packed into one integer
// so pkg/dispatch's equality gates can compare it bit by bit against the
// fetched instruction's raw fields. ok is false for opcodes Decode never
// produces directly (there are none in this subset; kept for symmetry
// with other table lookups in this package).
func RawCode(op Op) (code uint32, ok bool) {
	switch op {
	case LUI:
		return 0x37, true
	case AUIPC:
		return 0x17, true
	case JAL:
		return 0x6f, true
	case JALR:
		return rawCode(0x67, 0, 0), true
	case BEQ:
		return rawCode(0x63, 0b000, 0), true
	case BNE:
		return rawCode(0x63, 0b001, 0), true
	case BLT:
		return rawCode(0x63, 0b100, 0), true
	case BGE:
		return rawCode(0x63, 0b101, 0), true
	case BLTU:
		return rawCode(0x63, 0b110, 0), true
	case BGEU:
		return rawCode(0x63, 0b111, 0), true
	case LB:
		return rawCode(0x03, 0b000, 0), true
	case LH:
		return rawCode(0x03, 0b001, 0), true
	case LW:
		return rawCode(0x03, 0b010, 0), true
	case LBU:
		return rawCode(0x03, 0b100, 0), true
	case LHU:
		return rawCode(0x03, 0b101, 0), true
	case SB:
		return rawCode(0x23, 0b000, 0), true
	case SH:
		return rawCode(0x23, 0b001, 0), true
	case SW:
		return rawCode(0x23, 0b010, 0), true
	case ADDI:
		return rawCode(0x13, 0b000, 0), true
	case SLTI:
		return rawCode(0x13, 0b010, 0), true
	case SLTIU:
		return rawCode(0x13, 0b011, 0), true
	case XORI:
		return rawCode(0x13, 0b100, 0), true
	case ORI:
		return rawCode(0x13, 0b110, 0), true
	case ANDI:
		return rawCode(0x13, 0b111, 0), true
	case SLLI:
		return rawCode(0x13, 0b001, 0), true
	case SRLI:
		return rawCode(0x13, 0b101, 0), true
	case SRAI:
		return rawCode(0x13, 0b101, 1), true
	case ADD:
		return rawCode(0x33, 0b000, 0), true
	case SUB:
		return rawCode(0x33, 0b000, 1), true
	case SLL:
		return rawCode(0x33, 0b001, 0), true
	case SLT:
		return rawCode(0x33, 0b010, 0), true
	case SLTU:
		return rawCode(0x33, 0b011, 0), true
	case XOR:
		return rawCode(0x33, 0b100, 0), true
	case SRL:
		return rawCode(0x33, 0b101, 0), true
	case SRA:
		return rawCode(0x33, 0b101, 1), true
	case OR:
		return rawCode(0x33, 0b110, 0), true
	case AND:
		return rawCode(0x33, 0b111, 0), true
	case NONE:
		return 0, false
	}
	return 0, false
}

func rawCode(opcode, funct3, funct7b5 uint32) uint32 {
	return (opcode & maskOpcode) | (funct3&0x7)<<7 | (funct7b5&1)<<10
}

// RawMask returns the bitmask of RawCode bits that actually distinguish
// op from every other supported opcode. LUI, AUIPC, and JAL carry no
// funct3/funct7 field at all — those instruction-word bit positions hold
// immediate bits instead — so only the 7-bit opcode field is significant
// for them; every other supported op's funct3 (and, where ambiguous,
// funct7 bit 5) must also match.
func RawMask(op Op) uint32 {
	switch op {
	case LUI, AUIPC, JAL:
		return maskOpcode
	default:
		return 1<<RawWidth - 1
	}
}
