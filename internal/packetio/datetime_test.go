package packetio

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/tdsgo/tds/internal/tds"
	"github.com/tdsgo/tds/internal/tdstest"
)

type fakeChannel struct {
	net interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
	}
}

func (c fakeChannel) Read(p []byte) (int, error)  { return c.net.Read(p) }
func (c fakeChannel) Write(p []byte) (int, error) { return c.net.Write(p) }
func (c fakeChannel) SetLastSPID(uint16)          {}

func newTestReader(t *testing.T, body []byte) *Reader {
	t.Helper()
	client, server := tdstest.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	fs := tdstest.NewFakeServer(server)
	go func() {
		_ = fs.WriteMessage(tds.PacketReply, body)
	}()

	r := NewReader(fakeChannel{net: client}, tds.DefaultPacketSize)
	r.BeginMessage()
	return r
}

func TestReadDateReturnsCivilDate(t *testing.T) {
	// 2023-06-15 as days-since-0001-01-01, little-endian 3 bytes.
	want := civil.Date{Year: 2023, Month: time.June, Day: 15}
	body := encodeDaysSinceCE(t, want)

	r := newTestReader(t, body)
	got, err := r.ReadDate()
	if err != nil {
		t.Fatalf("ReadDate: %v", err)
	}
	if got != want {
		t.Fatalf("ReadDate = %v, want %v", got, want)
	}
}

func TestReadDateRejectsNegativeDays(t *testing.T) {
	body := []byte{0xFF, 0xFF, 0xFF}
	r := newTestReader(t, body)
	if _, err := r.ReadDate(); err == nil {
		t.Fatal("expected error for negative days-since-CE")
	}
}

func TestReadSmallDateTimeReturnsNonZeroTime(t *testing.T) {
	// days-since-1900-01-01 and minutes-since-midnight, both little-endian
	// uint16, matching the legacy SMALLDATETIME wire shape.
	body := []byte{0x10, 0x00, 0x3C, 0x00}
	r := newTestReader(t, body)
	got, err := r.ReadSmallDateTime()
	if err != nil {
		t.Fatalf("ReadSmallDateTime: %v", err)
	}
	if got.IsZero() {
		t.Fatal("ReadSmallDateTime returned zero time")
	}
}

// encodeDaysSinceCE packs d as the 3-byte little-endian days-since-0001-01-01
// count ReadDate expects.
func encodeDaysSinceCE(t *testing.T, d civil.Date) []byte {
	t.Helper()
	target := d.In(time.UTC)
	epoch := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int32((target.Unix() - epoch.Unix()) / 86400)
	return []byte{byte(days), byte(days >> 8), byte(days >> 16)}
}
