package tdstest

import (
	"testing"

	"github.com/tdsgo/tds/internal/tds"
)

func TestPreloginRoundTrip(t *testing.T) {
	client, server := Pipe()
	defer client.Close()
	defer server.Close()

	req := &tds.Prelogin{Encryption: tds.EncryptOn}
	done := make(chan error, 1)
	go func() {
		hdr := tds.Header{Type: tds.PacketPrelogin, Status: tds.StatusEOM, Length: uint16(tds.HeaderSize + len(req.Encode()))}
		if err := hdr.Write(client); err != nil {
			done <- err
			return
		}
		_, err := client.Write(req.Encode())
		done <- err
	}()

	srv := NewFakeServer(server)
	got, err := srv.ReadPrelogin()
	if err != nil {
		t.Fatalf("ReadPrelogin: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("writing prelogin request: %v", err)
	}
	if got.Encryption != tds.EncryptOn {
		t.Fatalf("expected encryption %d, got %d", tds.EncryptOn, got.Encryption)
	}
}

func TestWriteMessageSplitsAcrossPackets(t *testing.T) {
	client, server := Pipe()
	defer client.Close()
	defer server.Close()

	srv := NewFakeServer(server)
	srv.SetPacketSize(tds.HeaderSize + 4) // force many small packets

	payload := make([]byte, 37)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() { done <- srv.WriteMessage(tds.PacketReply, payload) }()

	clientSrv := NewFakeServer(client)
	pktType, got, err := clientSrv.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if pktType != tds.PacketReply {
		t.Fatalf("expected packet type %v, got %v", tds.PacketReply, pktType)
	}
	if len(got) != len(payload) {
		t.Fatalf("expected %d reassembled bytes, got %d", len(payload), len(got))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}
