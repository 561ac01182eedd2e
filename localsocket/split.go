// File: localsocket/split.go
//
// Per-direction halves of a connection. The OS manages the two directions
// of a duplex stream independently, so one goroutine may own the read half
// while another owns the write half without extra locking.

package localsocket

import (
	"io"

	"github.com/osipc/localsock/api"
)

// ReadHalf is the inbound direction of a split connection.
type ReadHalf struct {
	conn api.Conn
}

// WriteHalf is the outbound direction of a split connection.
type WriteHalf struct {
	conn api.Conn
}

// Split partitions conn into its two directions. The halves share the
// underlying handle; closing either half shuts only its own direction, and
// the connection itself must still be closed by its owner.
func Split(conn api.Conn) (*ReadHalf, *WriteHalf) {
	return &ReadHalf{conn: conn}, &WriteHalf{conn: conn}
}

// Read behaves like api.Conn.Read.
func (r *ReadHalf) Read(p []byte) (int, error) { return r.conn.Read(p) }

// Close shuts the inbound direction.
func (r *ReadHalf) Close() error { return r.conn.CloseRead() }

// Write behaves like api.Conn.Write.
func (w *WriteHalf) Write(p []byte) (int, error) { return w.conn.Write(p) }

// Close shuts the outbound direction, delivering end-of-stream to the peer.
func (w *WriteHalf) Close() error { return w.conn.CloseWrite() }

// WriteAll loops Write until p is fully sent, the contract for callers that
// cannot tolerate short writes.
func WriteAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
