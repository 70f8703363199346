package embedpy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameTransportRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	tr := NewFrameTransport(&wire, &wire)
	msgs := [][]byte{[]byte("short"), {}, bytes.Repeat([]byte{0xab}, 20000)}
	for _, m := range msgs {
		if err := tr.Send(m); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range msgs {
		got, err := tr.Receive()
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
	if _, err := tr.Receive(); !errors.Is(err, io.EOF) {
		t.Errorf("Receive at end of stream = %v, want io.EOF", err)
	}
}

func TestFrameTransportTruncated(t *testing.T) {
	var wire bytes.Buffer
	binary.Write(&wire, binary.BigEndian, uint32(10))
	wire.WriteString("abc")
	if _, err := NewFrameTransport(&wire, io.Discard).Receive(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated frame = %v", err)
	}

	wire.Reset()
	binary.Write(&wire, binary.BigEndian, uint32(MaxFrameSize+1))
	if _, err := NewFrameTransport(&wire, io.Discard).Receive(); err == nil {
		t.Error("oversized frame accepted")
	}
}
