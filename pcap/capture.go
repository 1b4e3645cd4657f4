// Package pcap implements the dispatch-pcap capture file writer (spec.md
// §6 "Frame capture file (external)"): one custom-packet-type record per
// captured packet, written through a standard pcap container.
//
// Writes are batched asynchronously via github.com/joeycumines/go-microbatch
// so that capture, which spec.md §4.5 places inline in the hot dispatch
// path ("each input packet is serialized ... before the function runs"),
// never blocks the dispatch loop on file I/O — a node enabling capture
// only pays for building the record; flushing to disk happens on the
// batcher's own goroutine.
package pcap

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// pcapMagic and the global header layout follow the standard (non-nsec)
// pcap container; LinkType custom marks every record as an opaque,
// application-defined payload (spec.md §6: "packet_type = custom").
const (
	pcapMagic       uint32 = 0xa1b2c3d4
	pcapVersionMaj  uint16 = 2
	pcapVersionMin  uint16 = 4
	linkTypeCustom  uint32 = 147 // LINKTYPE_USER0, reserved for private use
)

// Record is one captured packet (spec.md §6 per-packet record): a buffer
// index plus a small set of NUL-terminated strings (node name, buffer
// metadata, opaque dumps, optional trace) ahead of the raw payload.
type Record struct {
	Major, Minor uint8
	ProtocolHint uint16
	BufferIndex  uint32
	Strings      []string
	Payload      []byte
}

func (r Record) marshal() []byte {
	buf := make([]byte, 0, 16+len(r.Payload))
	buf = append(buf, r.Major, r.Minor)
	buf = append(buf, byte(len(r.Strings)))
	buf = append(buf, 0) // pad to align protocol hint
	var hint [2]byte
	binary.BigEndian.PutUint16(hint[:], r.ProtocolHint)
	buf = append(buf, hint[:]...)
	var bi [4]byte
	binary.BigEndian.PutUint32(bi[:], r.BufferIndex)
	buf = append(buf, bi[:]...)
	for _, s := range r.Strings {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	buf = append(buf, r.Payload...)
	return buf
}

// Writer batches and writes capture Records to an underlying pcap file.
type Writer struct {
	w       *bufio.Writer
	batcher *microbatch.Batcher[Record]
	closer  io.Closer
}

// NewWriter wraps w with a global pcap header and begins batching writes.
// flushInterval and maxBatch bound how long a record may wait before it
// actually reaches disk (spec.md doesn't mandate a specific flush policy
// for the async writer; this is this implementation's choice, made
// explicit rather than hidden behind a magic default).
func NewWriter(w io.WriteCloser, maxBatch int, flushInterval time.Duration) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if err := writeGlobalHeader(bw); err != nil {
		return nil, err
	}

	cw := &Writer{w: bw, closer: w}
	cw.batcher = microbatch.NewBatcher[Record](&microbatch.BatcherConfig{
		MaxSize:       maxBatch,
		FlushInterval: flushInterval,
	}, cw.flush)
	return cw, nil
}

func writeGlobalHeader(w io.Writer) error {
	hdr := make([]byte, 24)
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], pcapVersionMaj)
	binary.LittleEndian.PutUint16(hdr[6:8], pcapVersionMin)
	binary.LittleEndian.PutUint32(hdr[16:20], 65535) // snaplen
	binary.LittleEndian.PutUint32(hdr[20:24], linkTypeCustom)
	_, err := w.Write(hdr)
	return err
}

// Capture enqueues r for asynchronous writing. It returns once r has been
// accepted by the batcher, not once it has reached disk — callers that
// need durability should call Flush.
func (c *Writer) Capture(ctx context.Context, r Record) error {
	_, err := c.batcher.Submit(ctx, r)
	return err
}

func (c *Writer) flush(_ context.Context, jobs []Record) error {
	now := time.Now()
	for _, r := range jobs {
		body := r.marshal()
		rec := make([]byte, 16+len(body))
		binary.LittleEndian.PutUint32(rec[0:4], uint32(now.Unix()))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(now.Nanosecond()/1000))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(len(body)))
		binary.LittleEndian.PutUint32(rec[12:16], uint32(len(body)))
		copy(rec[16:], body)
		if _, err := c.w.Write(rec); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// Close drains the batcher and closes the underlying file.
func (c *Writer) Close() error {
	if err := c.batcher.Shutdown(context.Background()); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	return c.closer.Close()
}
