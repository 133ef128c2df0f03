package page

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{name: "leaf", h: Header{PageType: LeafNodeType, LSN: 1, Size: 3, MaxSize: 8, ParentPageID: 5, PageID: 9}},
		{name: "internal", h: Header{PageType: InternalNodeType, LSN: 0, Size: 2, MaxSize: 8, ParentPageID: InvalidPageID, PageID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.h.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary() error = %v", err)
			}
			if len(raw) != HeaderSize {
				t.Fatalf("MarshalBinary() len = %d, want %d", len(raw), HeaderSize)
			}
			var got Header
			if err := got.UnmarshalBinary(raw); err != nil {
				t.Fatalf("UnmarshalBinary() error = %v", err)
			}
			if got != tt.h {
				t.Fatalf("UnmarshalBinary() = %+v, want %+v", got, tt.h)
			}
		})
	}
}

func TestPutGetPageID(t *testing.T) {
	buf := make([]byte, 4)
	PutPageID(buf, 12345)
	if got := GetPageID(buf); got != 12345 {
		t.Fatalf("GetPageID() = %d, want 12345", got)
	}
}
