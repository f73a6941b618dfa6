//go:build !windows

package ipc

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imeswitchd/internal/config"
	"imeswitchd/internal/logging"
)

type fakeHandler struct{}

func (fakeHandler) Handle(_ context.Context, env *Envelope) (*Envelope, error) {
	switch env.Type {
	case TypeHello:
		return NewEnvelope(TypeHelloAck, env.Seq, &HelloAck{
			ServerVersion:   "test",
			ProtocolVersion: ProtocolVersion,
		})
	case TypeStatus:
		return NewEnvelope(TypeStatusReply, env.Seq, &StatusReply{
			Version: "test",
			Enabled: true,
		})
	default:
		return &Envelope{Type: TypeOK, Seq: env.Seq}, nil
	}
}

func startTestServer(t *testing.T, cfg config.IPCConfig) *Server {
	t.Helper()
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(t.TempDir(), "test.sock")
	}
	s := NewServer(cfg, fakeHandler{}, logging.Discard().Logger)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid request", `{"type":"status","seq":1}`, false},
		{"valid with payload", `{"type":"cursor_moved","seq":2,"payload":{"surface_id":"s1","line":0,"column":0}}`, false},
		{"no seq", `{"type":"ping"}`, false},
		{"unknown type", `{"type":"reboot"}`, true},
		{"response type not accepted", `{"type":"ok"}`, true},
		{"missing type", `{"seq":1}`, true},
		{"negative seq", `{"type":"ping","seq":-1}`, true},
		{"payload not object", `{"type":"hello","payload":"hi"}`, true},
		{"extra field", `{"type":"ping","extra":true}`, true},
		{"not json", `ping`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEnvelope(%s) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestRequestResponse(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{})

	c, err := Dial(s.cfg.SocketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ack, err := c.Hello("test-client", "0.0.1")
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	if ack.ServerVersion != "test" {
		t.Errorf("server version = %q", ack.ServerVersion)
	}

	resp, err := c.Call(TypeStatus, nil)
	if err != nil {
		t.Fatalf("Call status: %v", err)
	}
	var status StatusReply
	if err := resp.DecodePayload(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Enabled {
		t.Error("status.Enabled = false")
	}
}

func TestPing(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{})

	c, err := Dial(s.cfg.SocketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	resp, err := c.Call(TypePing, nil)
	if err != nil {
		t.Fatalf("Call ping: %v", err)
	}
	if resp.Type != TypePong {
		t.Errorf("response type = %q, want pong", resp.Type)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{})

	c, err := Dial(s.cfg.SocketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	event, err := NewEnvelope(TypeModeChanged, 0, &ModeChangedEvent{
		SurfaceID: "s1",
		Mode:      "native",
		Region:    "string",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	s.Publish(event)

	got, err := c.Next(2 * time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Type != TypeModeChanged {
		t.Fatalf("event type = %q, want mode_changed", got.Type)
	}
	var mc ModeChangedEvent
	if err := got.DecodePayload(&mc); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if mc.SurfaceID != "s1" || mc.Mode != "native" {
		t.Errorf("event = %+v", mc)
	}
}

func TestUnsubscribedClientGetsNoEvents(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{})

	c, err := Dial(s.cfg.SocketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	event, _ := NewEnvelope(TypeModeChanged, 0, &ModeChangedEvent{SurfaceID: "s1"})
	s.Publish(event)

	if _, err := c.Next(200 * time.Millisecond); err == nil {
		t.Fatal("expected read timeout, got an event")
	}
}

func TestMalformedLineGetsErrorReply(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{})

	conn, err := net.Dial("unix", s.cfg.SocketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"reboot"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(buf[:n]), `"type":"error"`) {
		t.Errorf("reply = %s, want error envelope", buf[:n])
	}
}

func TestConnectionLimit(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{MaxConnections: 1})

	c1, err := Dial(s.cfg.SocketPath)
	if err != nil {
		t.Fatalf("Dial first: %v", err)
	}
	defer c1.Close()
	if _, err := c1.Call(TypePing, nil); err != nil {
		t.Fatalf("ping on first connection: %v", err)
	}

	c2, err := Dial(s.cfg.SocketPath)
	if err != nil {
		// Rejected outright is also acceptable.
		return
	}
	defer c2.Close()
	if _, err := c2.Call(TypePing, nil); err == nil {
		t.Error("second connection should have been rejected")
	}
}

func TestStaleSocketReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")

	// A crashed daemon leaves its socket file behind.
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l.SetUnlinkOnClose(false)
	l.Close()

	s := startTestServer(t, config.IPCConfig{SocketPath: path})
	if s.ClientCount() != 0 {
		t.Errorf("fresh server has %d clients", s.ClientCount())
	}

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial after stale replace: %v", err)
	}
	c.Close()
}

func TestSecondDaemonRefused(t *testing.T) {
	s := startTestServer(t, config.IPCConfig{})

	dupe := NewServer(s.cfg, fakeHandler{}, logging.Discard().Logger)
	if err := dupe.Start(); err == nil {
		dupe.Stop()
		t.Fatal("second server on the same socket should fail to start")
	}
}
