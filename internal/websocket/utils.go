package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Deadlines for monitor connections. A watcher that cannot keep up with the
// feed is disconnected rather than allowed to block the writer.
const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
)

// WriteTyped sends one typed event, bounding how long a stalled peer can
// hold the connection.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// WriteError reports a terminal error to the watcher.
func WriteError(conn *websocket.Conn, msg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: msg,
	})
}

// ReadJSON decodes the next client message. The read deadline caps how long
// an idle connection is held open between pings.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	return conn.ReadJSON(v)
}
