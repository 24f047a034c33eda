package codec

import "testing"

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil { t.Fatalf("marshal: %v", err) }
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodec(t *testing.T) {
	c, err := CBOR()
	if err != nil { t.Fatalf("new cbor: %v", err) }
	in := map[string]any{"n": 42}
	b, err := c.Marshal(in)
	if err != nil { t.Fatalf("marshal: %v", err) }
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
	if int(out["n"].(uint64)) != 42 && int(out["n"].(float64)) != 42 { // decoder may choose num type
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "cbor"} {
		c, err := ByName(name)
		if err != nil { t.Fatalf("%s: %v", name, err) }
		if c == nil { t.Fatalf("%s: nil codec", name) }
	}
	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
