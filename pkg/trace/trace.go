// Package trace captures frames crossing a medium for post-run inspection.
package trace

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol/codec"
)

// Record is one observed transmission, decoded where possible.
type Record struct {
	TimeMS    int64  `json:"time_ms"`
	Link      string `json:"link"`
	LinkDst   string `json:"link_dst"`
	Malformed bool   `json:"malformed,omitempty"`

	Type     uint8  `json:"type"`
	ID       uint8  `json:"id"`
	HopCount uint8  `json:"hop_count"`
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	Payload  string `json:"payload,omitempty"`
}

// Recorder accumulates records; the tap may fire from any goroutine.
type Recorder struct {
	mu    sync.Mutex
	start time.Time
	recs  []Record
}

func NewRecorder(start time.Time) *Recorder {
	return &Recorder{start: start}
}

// Observe records one transmission. The signature matches the sim medium's
// tap, with the observation time supplied by the driving loop.
func (r *Recorder) Observe(now time.Time, link, linkDst protocol.Address, data []byte) {
	rec := Record{
		TimeMS:  now.Sub(r.start).Milliseconds(),
		Link:    link.String(),
		LinkDst: linkDst.String(),
	}
	var f protocol.Frame
	if err := f.UnmarshalBinary(data); err != nil {
		rec.Malformed = true
	} else {
		rec.Type = f.Type
		rec.ID = f.ID
		rec.HopCount = f.HopCount
		rec.Src = f.Src.String()
		rec.Dst = f.Dst.String()
		rec.Payload = hex.EncodeToString(f.Payload)
	}
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
}

// Len reports the number of captured records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

// Dump writes all records through the named codec ("json" or "cbor"), one
// record per newline-terminated line for JSON, or a single CBOR array.
func (r *Recorder) Dump(w io.Writer, format string) error {
	c, err := codec.ByName(format)
	if err != nil {
		return err
	}
	r.mu.Lock()
	recs := make([]Record, len(r.recs))
	copy(recs, r.recs)
	r.mu.Unlock()

	if format == "json" {
		for i := range recs {
			b, err := c.Marshal(&recs[i])
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
				return err
			}
		}
		return nil
	}
	b, err := c.Marshal(recs)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
