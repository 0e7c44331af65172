package messaging

import (
	"fmt"
	"strings"
)

// Direction states which side(s) of a connection may send a command.
//
// The wire names follow the receiving side: a "client" command is delivered
// to clients (server to client), a "server" command is delivered to the
// server (client to server).
type Direction uint8

const (
	// ServerToClient commands may only be sent by the server.
	ServerToClient Direction = 1 << iota
	// ClientToServer commands may only be sent by clients.
	ClientToServer
	// Both commands travel in either direction.
	Both = ServerToClient | ClientToServer
)

// ToClient reports whether the command may be delivered to a client.
func (d Direction) ToClient() bool {
	return d&ServerToClient != 0
}

// ToServer reports whether the command may be received by the server.
func (d Direction) ToServer() bool {
	return d&ClientToServer != 0
}

// String returns the wire name of the direction.
func (d Direction) String() string {
	switch d {
	case ServerToClient:
		return "client"
	case ClientToServer:
		return "server"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection parses a wire name ("client", "server" or "both"),
// case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return ServerToClient, nil
	case "server":
		return ClientToServer, nil
	case "both":
		return Both, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	switch d {
	case ServerToClient, ClientToServer, Both:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so specifications can be
// read from JSON or YAML documents.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
