// File: ancillary/ancillary.go
//
// Package ancillary transfers open OS handles alongside payload bytes over
// a local-socket connection, as one atomic unit per message. The capability
// exists only on the Unix backend; on others every call fails with
// api.ErrUnsupported. Overflow of the receiver's handle budget is a hard
// failure: a message is delivered whole or not at all, never truncated.
package ancillary

import (
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/handle"
)

// MaxHandlesPerMessage is the per-message handle budget imposed by the
// kernel control-buffer limit (SCM_MAX_FD).
const MaxHandlesPerMessage = 253

// Message is one received transfer unit. The contained handles are newly
// created and exclusively owned by the receiver.
type Message struct {
	Payload []byte
	Handles []*handle.Handle
}

// Send transmits payload and the referenced handles in one system call.
// The sender's handles stay open and owned by the sender; the peer receives
// fresh references. Returns the payload byte count actually sent.
func Send(conn api.Conn, payload []byte, handles []*handle.Handle) (int, error) {
	if !conn.Features().Ancillary {
		return 0, api.NewOpError("send-handles", "", api.ErrUnsupported, nil)
	}
	return sendInternal(conn, [][]byte{payload}, handles)
}

// SendVectored is the gather form of Send: the payload slices go out as one
// contiguous stream in a single system call together with the handle set.
func SendVectored(conn api.Conn, payloads [][]byte, handles []*handle.Handle) (int, error) {
	if !conn.Features().Ancillary {
		return 0, api.NewOpError("send-handles", "", api.ErrUnsupported, nil)
	}
	return sendInternal(conn, payloads, handles)
}

// Recv receives one message with at most maxHandles handles and a payload of
// at most maxPayload bytes. If the sender attached more handles than
// maxHandles the call fails with api.ErrAncillaryOverflow and nothing is
// delivered.
func Recv(conn api.Conn, maxPayload, maxHandles int) (*Message, error) {
	if !conn.Features().Ancillary {
		return nil, api.NewOpError("recv-handles", "", api.ErrUnsupported, nil)
	}
	if maxHandles < 0 || maxHandles > MaxHandlesPerMessage {
		maxHandles = MaxHandlesPerMessage
	}
	return recvInternal(conn, maxPayload, maxHandles)
}
