package ws

import (
	"net"
	"testing"

	"github.com/knocktalk/relay/internal/protocol"
)

func TestDispatch_RoutesToRegisteredHandler(t *testing.T) {
	d := NewMessageDispatcher(nil)
	conn := &Connection{ID: "conn-1"}

	var gotConn *Connection
	var gotMsg interface{}
	d.Register(protocol.TypeSearch, func(c *Connection, msg interface{}) {
		gotConn = c
		gotMsg = msg
	})

	d.Dispatch(conn, []byte(`{"type":"search","name":"mi"}`))

	if gotConn != conn {
		t.Fatal("handler not invoked with the originating connection")
	}
	sm, ok := gotMsg.(protocol.SearchMsg)
	if !ok {
		t.Fatalf("handler got %T, want SearchMsg", gotMsg)
	}
	if sm.Name != "mi" {
		t.Errorf("payload not decoded: %+v", sm)
	}
}

func TestDispatch_DropsMalformedAndUnknown(t *testing.T) {
	d := NewMessageDispatcher(nil)
	conn := &Connection{ID: "conn-1"}

	called := false
	d.Register(protocol.TypeSearch, func(c *Connection, msg interface{}) {
		called = true
	})

	// None of these may reach a handler or panic.
	d.Dispatch(conn, []byte(`{broken`))
	d.Dispatch(conn, []byte(`{"no_type":true}`))
	d.Dispatch(conn, []byte(`{"type":"teleport"}`))
	d.Dispatch(conn, []byte(`{"type":"register","profile":{"id":"u1"}}`)) // no handler registered

	if called {
		t.Error("a dropped message reached the search handler")
	}
}

func TestConnectionManager_AddRemoveCount(t *testing.T) {
	cm := NewConnectionManager()

	// Remove closes the underlying net.Conn, so the test connections need a
	// real one.
	p1, q1 := net.Pipe()
	p2, q2 := net.Pipe()
	defer q1.Close()
	defer q2.Close()
	defer p2.Close()

	c1 := &Connection{ID: "a", Fd: 10, Conn: p1}
	c2 := &Connection{ID: "b", Fd: 11, Conn: p2}
	cm.Add(c1)
	cm.Add(c2)

	if cm.Count() != 2 {
		t.Fatalf("count = %d, want 2", cm.Count())
	}
	if cm.Get("a") != c1 || cm.GetByFd(11) != c2 {
		t.Error("lookups returned wrong connections")
	}

	if !cm.Remove("a") {
		t.Error("Remove returned false for a live connection")
	}
	if cm.Remove("a") {
		t.Error("Remove returned true for an already removed connection")
	}
	if cm.Count() != 1 || cm.Get("a") != nil {
		t.Error("removed connection still present")
	}
}
