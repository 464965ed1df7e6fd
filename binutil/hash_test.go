package binutil

import (
	"bytes"
	"testing"
)

func TestSha192IsSha256Prefix(t *testing.T) {
	in := []byte("the quick brown fox")
	full := Sha256(in)
	short := Sha192(in)
	if !bytes.Equal(full[:24], short[:]) {
		t.Fatal("Sha192 must equal the first 24 bytes of Sha256")
	}
}

func TestHash256IsDoubleSha256(t *testing.T) {
	in := []byte("block header bytes")
	first := Sha256(in)
	want := Sha256(first[:])
	got := Hash256(in)
	if got != want {
		t.Fatal("Hash256 must be SHA256(SHA256(x))")
	}
}

func TestHash160Length(t *testing.T) {
	h := Hash160([]byte("pubkey bytes"))
	if len(h) != 20 {
		t.Fatalf("Hash160 length = %d, want 20", len(h))
	}
}

func TestBase58CheckRoundTrip(t *testing.T) {
	payload := Hash160([]byte("script bytes"))
	encoded := Base58CheckEncode(payload, 0x05)
	decodedPayload, version, err := Base58CheckDecode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if version != 0x05 || !bytes.Equal(decodedPayload, payload) {
		t.Fatalf("roundtrip mismatch: version=%x payload=%x", version, decodedPayload)
	}
}
