package page

import (
	"bytes"
	"encoding/binary"
)

// NodeType distinguishes an internal node from a leaf within the common
// header, the same tag field every overlay checks before interpreting the
// rest of a page's bytes.
type NodeType int32

const (
	InvalidNodeType NodeType = iota
	LeafNodeType
	InternalNodeType
)

// HeaderSize is the byte width of the common node header every B+ tree
// page (leaf or internal) starts with.
const HeaderSize = 24

// Header is the fixed-width prefix shared by every leaf and internal page:
// type tag, a log sequence number placeholder (WAL is out of scope, but the
// field stays so the on-disk shape matches a page that might one day carry
// one), the node's current and maximum slot counts, and its parent/self
// page ids for crabbing back up during split propagation.
type Header struct {
	PageType     NodeType
	LSN          uint32
	Size         int32
	MaxSize      int32
	ParentPageID PageID
	PageID       PageID
}

// MarshalBinary writes h as HeaderSize little-endian bytes, mirroring the
// teacher's binary.Write(buf, binary.LittleEndian, ...) framing.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	fields := []interface{}{h.PageType, h.LSN, h.Size, h.MaxSize, h.ParentPageID, h.PageID}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary reads a Header back out of its HeaderSize-byte prefix.
func (h *Header) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data[:HeaderSize])
	fields := []interface{}{&h.PageType, &h.LSN, &h.Size, &h.MaxSize, &h.ParentPageID, &h.PageID}
	for _, f := range fields {
		if err := binary.Read(buf, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// PutPageID packs a PageID as 4 little-endian bytes into dst, in the
// teacher's PutID style for fixed-width id slots embedded in node arrays.
func PutPageID(dst []byte, id PageID) {
	binary.LittleEndian.PutUint32(dst, uint32(id))
}

// GetPageID reads a PageID back out of a 4-byte little-endian slot.
func GetPageID(src []byte) PageID {
	return PageID(binary.LittleEndian.Uint32(src))
}

func putInt64(dst []byte, v int64)  { binary.LittleEndian.PutUint64(dst, uint64(v)) }
func getInt64(src []byte) int64     { return int64(binary.LittleEndian.Uint64(src)) }
func putUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func getUint32(src []byte) uint32    { return binary.LittleEndian.Uint32(src) }
