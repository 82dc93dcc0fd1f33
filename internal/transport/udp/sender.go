// SPDX-License-Identifier: MIT
// Package udp sends visualizer frames as compact binary datagrams.
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"

	"scribe/internal/analysis"
	applog "scribe/internal/log"
	"scribe/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Mode              | uint8          | 1            | Analysis mode           |
| Bucket Count      | uint16         | 2            | Number of floats (N)    |
| Buckets           | []float32      | N * 4        | Values in [0, 1]        |
+-----------------------------------------------------------------------------+
*/
const HeaderSize = 4 + 8 + 1 + 2

var ErrShortPacket = errors.New("udp: short packet")

// EncodePacket appends the wire form of f to dst.
func EncodePacket(dst []byte, f transport.Frame) []byte {
	dst = binary.BigEndian.AppendUint32(dst, f.Sequence)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.Timestamp))
	dst = append(dst, uint8(f.Mode))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Buckets)))
	for _, v := range f.Buckets {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodePacket parses a packet produced by EncodePacket.
func DecodePacket(b []byte) (transport.Frame, error) {
	if len(b) < HeaderSize {
		return transport.Frame{}, ErrShortPacket
	}
	f := transport.Frame{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Mode:      analysis.Mode(b[12]),
	}
	n := int(binary.BigEndian.Uint16(b[13:15]))
	payload := b[HeaderSize:]
	if len(payload) != 4*n {
		return transport.Frame{}, fmt.Errorf("udp: %d payload bytes for %d buckets", len(payload), n)
	}
	f.Buckets = make([]float32, n)
	for i := range f.Buckets {
		f.Buckets[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[4*i:]))
	}
	return f, nil
}

// Sender handles sending frames over UDP.
type Sender struct {
	conn   *net.UDPConn
	mu     sync.Mutex // Protects conn and buf.
	buf    []byte
	closed bool
	log    *applog.Logger
}

// NewSender creates a new Sender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// Sending needs no particular local port.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	s := &Sender{conn: conn, log: applog.WithComponent("transport")}
	s.log.Infof("UDP Sender: Connection established to %s", conn.RemoteAddr())
	return s, nil
}

// Send transmits a transport.Frame as one packet. A []byte is sent as is.
func (s *Sender) Send(data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("UDP sender is closed")
	}

	var packet []byte
	switch v := data.(type) {
	case transport.Frame:
		s.buf = EncodePacket(s.buf[:0], v)
		packet = s.buf
	case *transport.Frame:
		s.buf = EncodePacket(s.buf[:0], *v)
		packet = s.buf
	case []byte:
		packet = v
	default:
		return fmt.Errorf("UDP sender cannot send %T", data)
	}

	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Infof("UDP Sender: Closing connection to %s", s.conn.RemoteAddr())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

var _ transport.Transport = (*Sender)(nil)
