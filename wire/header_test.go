package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Version: 0, PacketLength: 0, Compression: CompressionNone, Encryption: EncryptionNone},
		{Version: 0, PacketLength: 1500, Compression: CompressionZstd, Encryption: EncryptionNone},
		{Version: 0, PacketLength: 64, Compression: CompressionGzip, Encryption: EncryptionNone},
	}
	for _, h := range cases {
		buf := make([]byte, Size)
		if err := Encode(h, buf); err != nil {
			t.Fatalf("Encode(%+v) = %v", h, err)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode(Encode(%+v)) error = %v", h, err)
		}
		if got != h {
			t.Errorf("round trip = %+v, want %+v", got, h)
		}
	}
}

func TestEncodeReservedZeroed(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, Size)
	if err := Encode(Header{Version: 0, PacketLength: 10}, buf); err != nil {
		t.Fatal(err)
	}
	for i := 10; i < Size; i++ {
		if buf[i] != 0 {
			t.Errorf("reserved byte %d = %#x, want 0", i, buf[i])
		}
	}
}

func TestDecodeBufferTooSmall(t *testing.T) {
	for n := 0; n < Size; n++ {
		if _, err := Decode(make([]byte, n)); !errors.Is(err, ErrBufferTooSmall) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrBufferTooSmall", n, err)
		}
	}
}

func TestMarkerDiscipline(t *testing.T) {
	good := make([]byte, Size)
	Encode(Header{}, good)

	cases := [][]byte{
		{0x00, 0xAB, 0xC0, 0xDE},
		{0xAC, 0x00, 0xC0, 0xDE},
		{0xAC, 0xAB, 0x00, 0xDE},
		{0xAC, 0xAB, 0xC0, 0x00},
		{0x00, 0x00, 0x00, 0x00},
	}
	for _, marker := range cases {
		buf := append([]byte{}, good...)
		copy(buf[0:4], marker)
		if _, err := Decode(buf); !errors.Is(err, ErrBadSyncMarker) {
			t.Errorf("Decode with marker %x error = %v, want ErrBadSyncMarker", marker, err)
		}
	}
}

func TestDecodeBadVersion(t *testing.T) {
	buf := make([]byte, Size)
	Encode(Header{Version: 0}, buf)
	buf[4] = 1 // version = 1, little-endian low byte
	if _, err := Decode(buf); !errors.Is(err, ErrBadVersion) {
		t.Errorf("error = %v, want ErrBadVersion", err)
	}
}

func TestDecodeUnknownCompression(t *testing.T) {
	buf := make([]byte, Size)
	Encode(Header{}, buf)
	buf[8] = 99
	_, err := Decode(buf)
	var nv *NoSuchVariantError
	if !errors.As(err, &nv) {
		t.Fatalf("error = %v, want *NoSuchVariantError", err)
	}
	if nv.Tag != 99 {
		t.Errorf("NoSuchVariantError.Tag = %d, want 99", nv.Tag)
	}
}

func TestDecodeUnknownEncryption(t *testing.T) {
	buf := make([]byte, Size)
	Encode(Header{}, buf)
	buf[9] = 7
	if _, err := Decode(buf); !errors.Is(err, ErrBadEncryption) {
		t.Errorf("error = %v, want ErrBadEncryption", err)
	}
}

func TestMaxPacketLengthConstant(t *testing.T) {
	if MaxPacketLength != 1500 {
		t.Fatalf("MaxPacketLength = %d, want 1500", MaxPacketLength)
	}
}
