package ws

import (
	"log"

	"github.com/knocktalk/relay/internal/protocol"
)

// Sink adapts a Connection into the addressable delivery capability the hub
// operates on, keeping the relay logic transport-agnostic. Delivery is
// best-effort: encode and write failures are logged and absorbed, never
// propagated back into hub state.
type Sink struct {
	server *Server
	conn   *Connection
}

// SinkFor returns the delivery sink for a connection.
func (s *Server) SinkFor(c *Connection) *Sink {
	return &Sink{server: s, conn: c}
}

// Deliver encodes the payload as a server message of the given event type and
// writes it to the connection under the configured write deadline.
func (k *Sink) Deliver(event string, payload any) {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("ws: failed to build %s for conn=%s: %v", event, k.conn.ID, err)
		return
	}
	if err := k.server.writeWithDeadline(k.conn, data); err != nil {
		log.Printf("ws: failed to deliver %s to conn=%s: %v", event, k.conn.ID, err)
	}
}

// Terminate force-closes the connection and runs the server's disconnect
// cleanup path.
func (k *Sink) Terminate() {
	k.server.RemoveConnection(k.conn)
}

// BroadcastEvent encodes the payload once and pushes it to every live
// connection, registered or not. Used for the unfiltered presence counts.
func (s *Server) BroadcastEvent(event string, payload any) {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("ws: failed to build broadcast %s: %v", event, err)
		return
	}
	s.conns.Broadcast(data)
}
