package comm

import (
	"fmt"
	"net"
)

// Sender transmits command datagrams to the robot's controller process.
// Sends are fire-and-forget; no acknowledgment is awaited.
type Sender struct {
	conn *net.UDPConn
}

// DialSender connects a UDP socket to the command address (host:port).
func DialSender(addr string) (*Sender, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve command address: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, ua)
	if err != nil {
		return nil, fmt.Errorf("dial command socket: %w", err)
	}
	return &Sender{conn: conn}, nil
}

// Send encodes and transmits one command datagram.
func (s *Sender) Send(ca, cb []float64) error {
	if _, err := s.conn.Write(EncodeCommands(ca, cb)); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Close closes the command socket.
func (s *Sender) Close() error { return s.conn.Close() }
