// Command quackmesh-frame generates sample frames as binary files and
// decodes hex-encoded frames to JSON or CBOR for inspection.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol/codec"
)

type frameView struct {
	NetworkID uint16 `json:"network_id"`
	Type      uint8  `json:"type"`
	ID        uint8  `json:"id"`
	HopCount  uint8  `json:"hop_count"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Payload   string `json:"payload"`
}

func main() {
	outDir := flag.String("out", "testdata/frame", "output directory for generated binary frames")
	decode := flag.String("decode", "", "hex-encoded frame to decode instead of generating")
	format := flag.String("format", "json", "decode output format: json or cbor")
	flag.Parse()

	if *decode != "" {
		if err := decodeFrame(*decode, *format); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil { log.Fatal(err) }

	src := protocol.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}
	dst := protocol.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x02}

	// 1) Unconfirmed data frame
	writeOut(*outDir, "frame_unconfirmed.bin", mustFrame(&protocol.Frame{
		Type: protocol.TypeUnconfirmed, ID: 1, HopCount: 3,
		Src: src, Dst: dst, Payload: []byte("quack"),
	}))

	// 2) Confirmed frame and its acknowledgement
	writeOut(*outDir, "frame_confirmed.bin", mustFrame(&protocol.Frame{
		Type: protocol.TypeConfirmed, ID: 2, HopCount: 3,
		Src: src, Dst: dst, Payload: []byte{0xDE, 0xAD},
	}))
	writeOut(*outDir, "frame_ack.bin", mustFrame(&protocol.Frame{
		Type: protocol.TypeAck, ID: 2, HopCount: 3,
		Src: dst, Dst: src,
	}))

	// 3) Broadcast frame with maximum payload
	writeOut(*outDir, "frame_broadcast_full.bin", mustFrame(&protocol.Frame{
		Type: protocol.TypeUnconfirmed, ID: 3, HopCount: 3,
		Src: src, Dst: protocol.Broadcast, Payload: make([]byte, protocol.MaxPayload),
	}))

	fmt.Println("Generated sample frames in", *outDir)
}

func decodeFrame(hexStr, format string) error {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return fmt.Errorf("bad hex input: %w", err)
	}
	var f protocol.Frame
	if err := f.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	c, err := codec.ByName(format)
	if err != nil {
		return err
	}
	b, err := c.Marshal(frameView{
		NetworkID: f.NetworkID,
		Type:      f.Type,
		ID:        f.ID,
		HopCount:  f.HopCount,
		Src:       f.Src.String(),
		Dst:       f.Dst.String(),
		Payload:   hex.EncodeToString(f.Payload),
	})
	if err != nil {
		return err
	}
	if format == "cbor" {
		fmt.Println(hex.EncodeToString(b))
	} else {
		fmt.Println(string(b))
	}
	return nil
}

func mustFrame(f *protocol.Frame) []byte {
	b, err := f.MarshalBinary()
	if err != nil { log.Fatal(err) }
	return b
}

func writeOut(dir, name string, b []byte) {
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
		log.Fatal(err)
	}
}
