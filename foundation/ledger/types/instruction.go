package types

import "fmt"

// Kind identifies the variant of an instruction on the wire.
type Kind uint8

// Set of instruction kinds the ledger knows how to execute.
const (
	KindTransfer Kind = 1
	KindWrite    Kind = 2
	KindTouch    Kind = 3
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindTransfer:
		return "transfer"
	case KindWrite:
		return "write"
	case KindTouch:
		return "touch"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Instruction is the closed set of operations a transaction can carry. Only
// the types in this package implement it.
type Instruction interface {
	Kind() Kind
	instruction()
}

// Transfer moves Amount prisms from the sender to every target.
type Transfer struct {
	Amount uint64
}

// Write replaces the sender's state blob.
type Write struct {
	Data []byte
}

// Touch creates the targets that do not exist yet and bumps the sender
// sequence.
type Touch struct{}

// Kind implements the Instruction interface.
func (Transfer) Kind() Kind { return KindTransfer }

// Kind implements the Instruction interface.
func (Write) Kind() Kind { return KindWrite }

// Kind implements the Instruction interface.
func (Touch) Kind() Kind { return KindTouch }

func (Transfer) instruction() {}
func (Write) instruction()    {}
func (Touch) instruction()    {}
