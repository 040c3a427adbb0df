package database

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"slices"

	"github.com/VincentBerthier/bifrost/foundation/ledger/errs"
	"github.com/VincentBerthier/bifrost/foundation/ledger/types"
)

// Layout of the file. Two header slots lead the file; the one with the
// highest generation and a valid checksum is the committed state. A commit
// only ever writes the other slot, which is what makes it atomic.
const (
	headerSize  = 128
	slotCount   = 2
	regionStart = headerSize * slotCount
	lenPrefix   = 4
)

// FormatVersion is the on-disk format version of the store file.
const FormatVersion uint16 = 1

var magic = [8]byte{'B', 'I', 'F', 'R', 'O', 'S', 'T', '1'}

// Offsets inside a header slot.
const (
	offMagic      = 0
	offVersion    = 8
	offGeneration = 16
	offTail       = 24
	offCount      = 32
	offSnapshot   = 40
	offChecksum   = offSnapshot + types.HashLength
	checksumSize  = 4
)

var errEmptySlot = errors.New("empty header slot")

// Header is the small fixed-size record describing the last committed state.
// A crash-recovery collaborator reads it on startup to learn the last durable
// state.
type Header struct {
	Version    uint16
	Generation uint64     // Incremented by every commit.
	Tail       uint64     // End offset of the committed records.
	Count      uint64     // Number of committed records, superseded ones included.
	Snapshot   types.Hash // Root digest of the committed accounts.
}

// encode writes the header into a slot sized buffer.
func (h Header) encode(b []byte) {
	clear(b[:headerSize])
	copy(b[offMagic:], magic[:])
	binary.LittleEndian.PutUint16(b[offVersion:], h.Version)
	binary.LittleEndian.PutUint64(b[offGeneration:], h.Generation)
	binary.LittleEndian.PutUint64(b[offTail:], h.Tail)
	binary.LittleEndian.PutUint64(b[offCount:], h.Count)
	copy(b[offSnapshot:], h.Snapshot[:])
	binary.LittleEndian.PutUint32(b[offChecksum:], crc32.ChecksumIEEE(b[:offChecksum]))
}

// decodeHeader reads and checks a header slot.
func decodeHeader(b []byte) (Header, error) {
	if isZero(b[:headerSize]) {
		return Header{}, errEmptySlot
	}

	if !bytes.Equal(b[offMagic:offMagic+len(magic)], magic[:]) {
		return Header{}, errs.New(errs.StoreCorruption, "bad magic %q", b[offMagic:offMagic+len(magic)])
	}

	sum := binary.LittleEndian.Uint32(b[offChecksum:])
	if sum != crc32.ChecksumIEEE(b[:offChecksum]) {
		return Header{}, errs.New(errs.StoreCorruption, "header checksum mismatch")
	}

	h := Header{
		Version:    binary.LittleEndian.Uint16(b[offVersion:]),
		Generation: binary.LittleEndian.Uint64(b[offGeneration:]),
		Tail:       binary.LittleEndian.Uint64(b[offTail:]),
		Count:      binary.LittleEndian.Uint64(b[offCount:]),
	}
	copy(h.Snapshot[:], b[offSnapshot:offChecksum])

	if h.Version != FormatVersion {
		return Header{}, errs.New(errs.UnknownVersion, "store format version %d", h.Version)
	}

	return h, nil
}

// ReadHeader reads the header of the last durable commit from the store file
// without opening the store.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	buf := make([]byte, regionStart)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Header{}, errs.Wrap(errs.StoreCorruption, fmt.Errorf("reading header: %w", err))
	}

	h, _, err := activeHeader(buf)
	return h, err
}

// activeHeader picks the valid slot with the highest generation.
func activeHeader(data []byte) (Header, int, error) {
	found, err := validHeaders(data)
	if err != nil {
		return Header{}, -1, err
	}
	return found[0].header, found[0].slot, nil
}

// slotHeader is a header that passed its checksum and the slot holding it.
type slotHeader struct {
	header Header
	slot   int
}

// validHeaders returns the slots whose header checks out, newest generation
// first.
func validHeaders(data []byte) ([]slotHeader, error) {
	var (
		found   []slotHeader
		lastErr error
	)

	for i := 0; i < slotCount; i++ {
		h, err := decodeHeader(data[i*headerSize:])
		if err != nil {
			if !errors.Is(err, errEmptySlot) {
				lastErr = err
			}
			continue
		}
		found = append(found, slotHeader{header: h, slot: i})
	}

	if len(found) == 0 {
		if lastErr == nil {
			lastErr = errEmptySlot
		}
		return nil, errs.Wrap(errs.StoreCorruption, fmt.Errorf("no valid header: %w", lastErr))
	}

	slices.SortFunc(found, func(a, b slotHeader) int {
		return cmp.Compare(b.header.Generation, a.header.Generation)
	})

	return found, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
