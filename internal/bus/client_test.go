package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-pitch/internal/config"
	"github.com/loqalabs/loqa-pitch/internal/natsserver"
	"github.com/loqalabs/loqa-pitch/internal/protocol"
)

func TestPublishJSONRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	defer srv.Shutdown()

	client, err := Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, "pitch-test", logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if !client.Healthy() {
		t.Fatal("expected connected client to be healthy")
	}

	sub, err := client.Conn().SubscribeSync(protocol.SubjectTranscriptFinal)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	want := protocol.Transcript{SessionID: "s1", Mode: "uploaded_file", Text: "hello world"}
	if err := client.PublishJSON(protocol.SubjectTranscriptFinal, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got protocol.Transcript
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != want.SessionID || got.Text != want.Text {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestConnectRequiresServers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Connect(context.Background(), config.BusConfig{}, "pitch-test", logger); err == nil {
		t.Fatal("expected error without servers")
	}
}
