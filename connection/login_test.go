package connection

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tdsgo/tds/dsn"
	"github.com/tdsgo/tds/internal/channel"
	"github.com/tdsgo/tds/internal/logutil"
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/tds"
	"github.com/tdsgo/tds/internal/tdstest"
)

func testLogger() *logutil.Logger {
	return logutil.New(io.Discard, logutil.LevelError)
}

func TestDoLoginSuccess(t *testing.T) {
	clientConn, serverConn := tdstest.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	ch := channel.Open(clientConn, testLogger())
	w := packetio.NewWriter(ch, tds.InitialPacketSize, 0)
	r := packetio.NewReader(ch, tds.InitialPacketSize)

	srv := tdstest.NewFakeServer(serverConn)
	done := make(chan error, 1)
	go func() {
		_, _, err := srv.ReadMessage() // LOGIN7
		if err != nil {
			done <- err
			return
		}
		done <- srv.WriteMessage(tds.PacketReply, tdstest.LoginSuccess("master", "tds-go"))
	}()

	cfg := dsn.Defaults()
	cfg.ServerName = "localhost"
	cfg.User = "sa"
	cfg.Password = "secret"
	cfg.DatabaseName = "master"

	outcome, err := doLogin(w, r, cfg, false, false, true, nil)
	if err != nil {
		t.Fatalf("doLogin failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("fake server failed: %v", err)
	}
	if outcome.database != "master" {
		t.Fatalf("expected database %q, got %q", "master", outcome.database)
	}
	if outcome.ack.ProgName != "tds-go" {
		t.Fatalf("expected progname %q, got %q", "tds-go", outcome.ack.ProgName)
	}
}

func TestDoLoginServerError(t *testing.T) {
	clientConn, serverConn := tdstest.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	ch := channel.Open(clientConn, testLogger())
	w := packetio.NewWriter(ch, tds.InitialPacketSize, 0)
	r := packetio.NewReader(ch, tds.InitialPacketSize)

	srv := tdstest.NewFakeServer(serverConn)
	done := make(chan error, 1)
	go func() {
		if _, _, err := srv.ReadMessage(); err != nil {
			done <- err
			return
		}
		var body []byte
		body = append(body, tdstest.ErrorToken(18456, 1, 14, "Login failed for user 'sa'.", "localhost", "", 1)...)
		body = append(body, tdstest.DoneToken(tds.DoneFinal|tds.DoneError, 0)...)
		done <- srv.WriteMessage(tds.PacketReply, body)
	}()

	cfg := dsn.Defaults()
	cfg.ServerName = "localhost"
	cfg.User = "sa"
	cfg.Password = "wrong"

	_, err := doLogin(w, r, cfg, false, false, true, nil)
	if err != nil {
		t.Fatalf("doLogin should surface the server error via the handler, not fail the parse: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("fake server failed: %v", err)
	}
}

func TestResiliencyPolicyFailsFastWithoutRetries(t *testing.T) {
	policy := ResiliencyPolicy{RetryCount: 0, RetryInterval: time.Second, LoginTimeout: time.Second}
	err := reconnect(context.Background(), policy, 10*time.Second, func(ctx context.Context) error {
		t.Fatal("attempt should never run when RetryCount is 0")
		return nil
	})
	if err == nil {
		t.Fatal("expected an immediate failure when connect_retry_count is 0")
	}
}

func TestResiliencyPolicyFailsFastWhenIntervalExceedsQueryTimeout(t *testing.T) {
	policy := ResiliencyPolicy{RetryCount: 3, RetryInterval: 20 * time.Second, LoginTimeout: time.Second}
	err := reconnect(context.Background(), policy, 5*time.Second, func(ctx context.Context) error {
		t.Fatal("attempt should never run when retry interval exceeds the query timeout")
		return nil
	})
	if err == nil {
		t.Fatal("expected an immediate failure when retry interval exceeds query timeout")
	}
}

func TestExpectedRetryEnvelope(t *testing.T) {
	policy := ResiliencyPolicy{RetryCount: 3, RetryInterval: 2 * time.Second, LoginTimeout: time.Second}
	want := 2*time.Second*2 + time.Second*3 // interval*(count-1) + login*count
	if got := ExpectedRetryEnvelope(policy); got != want {
		t.Fatalf("expected envelope %v, got %v", want, got)
	}
}
