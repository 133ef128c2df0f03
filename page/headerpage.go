package page

import "github.com/relcore/coredb/storage/errs"

const (
	headerRecordSize = 36 // 32-byte name + 4-byte root page id
	headerCountOff   = 0
	headerArrayOff   = 4
)

// HeaderPage is the fixed page-0 directory mapping an index name to its
// root page id, letting a fresh engine start rediscover every tree's root
// without a separate catalog.
type HeaderPage struct {
	p *Page
}

func WrapHeader(p *Page) *HeaderPage { return &HeaderPage{p: p} }

func (h *HeaderPage) Init() {
	putUint32(h.p.Data()[headerCountOff:headerCountOff+4], 0)
}

func (h *HeaderPage) count() uint32 {
	return getUint32(h.p.Data()[headerCountOff : headerCountOff+4])
}

// RecordCount returns how many indices are currently registered.
func (h *HeaderPage) RecordCount() uint32 { return h.count() }

func (h *HeaderPage) recordOffset(i uint32) int {
	return headerArrayOff + int(i)*headerRecordSize
}

func (h *HeaderPage) nameAt(i uint32) string {
	off := h.recordOffset(i)
	raw := h.p.Data()[off : off+32]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

// GetRootID returns the root page id recorded for name.
func (h *HeaderPage) GetRootID(name string) (PageID, bool) {
	for i := uint32(0); i < h.count(); i++ {
		if h.nameAt(i) == name {
			off := h.recordOffset(i) + 32
			return GetPageID(h.p.Data()[off : off+4]), true
		}
	}
	return InvalidPageID, false
}

// InsertRootID records name's root page id. Returns errs.ErrConflict if
// name is already registered.
func (h *HeaderPage) InsertRootID(name string, rootID PageID) error {
	if _, ok := h.GetRootID(name); ok {
		return errs.New(errs.ErrConflict, "header page: index %q already registered", name)
	}
	if len(name) > 32 {
		return errs.New(errs.ErrInvariant, "header page: index name %q exceeds 32 bytes", name)
	}
	i := h.count()
	off := h.recordOffset(i)
	nameBuf := h.p.Data()[off : off+32]
	for j := range nameBuf {
		nameBuf[j] = 0
	}
	copy(nameBuf, name)
	PutPageID(h.p.Data()[off+32:off+36], rootID)
	putUint32(h.p.Data()[headerCountOff:headerCountOff+4], i+1)
	return nil
}

// UpdateRootID overwrites name's recorded root page id, e.g. after a split
// grows a new root.
func (h *HeaderPage) UpdateRootID(name string, rootID PageID) error {
	for i := uint32(0); i < h.count(); i++ {
		if h.nameAt(i) == name {
			off := h.recordOffset(i) + 32
			PutPageID(h.p.Data()[off:off+4], rootID)
			return nil
		}
	}
	return errs.New(errs.ErrNotFound, "header page: index %q not registered", name)
}
