package trace

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

func TestRecorderDumpJSON(t *testing.T) {
	start := time.Unix(100, 0)
	r := NewRecorder(start)

	f := protocol.Frame{Type: protocol.TypeConfirmed, ID: 5, HopCount: 3,
		Src: protocol.Address{1}, Dst: protocol.Address{2}, Payload: []byte{0xAB}}
	b, err := f.MarshalBinary()
	if err != nil { t.Fatalf("marshal: %v", err) }

	r.Observe(start.Add(50*time.Millisecond), protocol.Address{1}, protocol.Broadcast, b)
	r.Observe(start.Add(60*time.Millisecond), protocol.Address{1}, protocol.Broadcast, []byte{1, 2})
	if r.Len() != 2 { t.Fatalf("len = %d", r.Len()) }

	var buf bytes.Buffer
	if err := r.Dump(&buf, "json"); err != nil { t.Fatalf("dump: %v", err) }
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 { t.Fatalf("lines = %d", len(lines)) }
	if !strings.Contains(lines[0], `"payload":"ab"`) {
		t.Fatalf("first record missing payload: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"malformed":true`) {
		t.Fatalf("second record should be malformed: %s", lines[1])
	}
}

func TestRecorderDumpCBOR(t *testing.T) {
	r := NewRecorder(time.Unix(0, 0))
	r.Observe(time.Unix(1, 0), protocol.Address{1}, protocol.Address{2}, []byte{1})
	var buf bytes.Buffer
	if err := r.Dump(&buf, "cbor"); err != nil { t.Fatalf("dump: %v", err) }
	if buf.Len() == 0 { t.Fatal("empty cbor dump") }
}

func TestRecorderUnknownFormat(t *testing.T) {
	r := NewRecorder(time.Unix(0, 0))
	if err := r.Dump(&bytes.Buffer{}, "xml"); err == nil {
		t.Fatal("expected error")
	}
}
