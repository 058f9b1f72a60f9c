package mc

import (
	"bytes"
	"net"
	"testing"
)

func pipeConns(t *testing.T) (*conn, *conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return newConn(a), newConn(b)
}

func roundTripPacket(t *testing.T, from, to *conn, id int32, data []byte) {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		errc <- from.writePacket(id, data)
	}()
	p, err := to.readPacket()
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	if p.id != id {
		t.Fatalf("packet id = %#x, want %#x", p.id, id)
	}
	if !bytes.Equal(p.data, data) {
		t.Fatalf("packet data = %v, want %v", p.data, data)
	}
}

func TestPacketRoundTripUncompressed(t *testing.T) {
	a, b := pipeConns(t)
	roundTripPacket(t, a, b, packetChatMessage, []byte("hello"))
	roundTripPacket(t, b, a, packetServerChat, nil)
}

func TestPacketRoundTripCompressed(t *testing.T) {
	a, b := pipeConns(t)
	a.enableCompression(16)
	b.enableCompression(16)

	// Below threshold: the frame carries the body uncompressed.
	roundTripPacket(t, a, b, packetKeepAlive, []byte{0x07})

	// Above threshold: zlib on the wire.
	big := bytes.Repeat([]byte("afk bot idle line "), 64)
	roundTripPacket(t, a, b, packetChatMessage, big)
	roundTripPacket(t, b, a, packetServerChat, big)
}

func TestReadPacketRejectsOversizeFrame(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		buf := &bytes.Buffer{}
		writeVarInt(buf, maxPacketSize+1)
		a.Write(buf.Bytes())
	}()

	if _, err := newConn(b).readPacket(); err == nil {
		t.Fatal("expected an error for an oversize frame")
	}
}
