package gokv

import "testing"

func TestMetadataPackRoundTrip(t *testing.T) {
	m := Metadata{Free: 7, Size: 42, Root: 3, Height: 2}
	packed := m.Pack()
	got := UnpackMetadata(packed[:])
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMetadataPackIsBigEndian(t *testing.T) {
	m := Metadata{Free: 0x01020304, Size: 0, Root: 0, Height: 0}
	packed := m.Pack()
	if packed[0] != 0x01 || packed[1] != 0x02 || packed[2] != 0x03 || packed[3] != 0x04 {
		t.Fatalf("expected big-endian encoding of Free, got %v", packed[:4])
	}
}
