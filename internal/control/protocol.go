package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// Frame opcodes. Every exchange is one request frame followed by one
// response frame: [opcode LE u32][length LE u32][JSON payload].
const (
	opRequest  = 1
	opResponse = 2
)

const maxFrameBytes = 1 << 20

// Browse root ids. Trusted clients browse from RootID; clients that
// fail the peer check get EmptyRootID, which has no children.
const (
	RootID      = "__ROOT__"
	EmptyRootID = "__EMPTY__"
)

// Request is a single control command.
type Request struct {
	Cmd      string `json:"cmd"`
	ID       string `json:"id,omitempty"`       // play_from_id
	Parent   string `json:"parent,omitempty"`   // children
	Position int64  `json:"position,omitempty"` // seek, milliseconds
	Limit    int    `json:"limit,omitempty"`    // history
}

// Commands accepted by the daemon.
const (
	CmdRoot       = "root"
	CmdChildren   = "children"
	CmdPlay       = "play"
	CmdPlayFromID = "play_from_id"
	CmdPause      = "pause"
	CmdStop       = "stop"
	CmdSeek       = "seek"
	CmdStatus     = "status"
	CmdHistory    = "history"
)

// ItemInfo is the wire form of a catalog item.
type ItemInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	Artist      string `json:"artist"`
	Genre       string `json:"genre,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	DurationMS  int64  `json:"durationMs,omitempty"`
}

// StatusInfo is the wire form of a playback snapshot.
type StatusInfo struct {
	State      string   `json:"state"`
	ItemID     string   `json:"itemId,omitempty"`
	PositionMS int64    `json:"positionMs"` // -1 when unknown
	Error      string   `json:"error,omitempty"`
	Actions    []string `json:"actions"`
}

// PlayInfo is the wire form of a history entry.
type PlayInfo struct {
	ItemID    string `json:"itemId"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	StartedAt int64  `json:"startedAt"` // unix seconds
	PlayedMS  int64  `json:"playedMs"`
	Completed bool   `json:"completed"`
}

// Response is the daemon's answer to a Request.
type Response struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Root   string      `json:"root,omitempty"`
	Items  []ItemInfo  `json:"items,omitempty"`
	Status *StatusInfo `json:"status,omitempty"`
	Plays  []PlayInfo  `json:"plays,omitempty"`
}

// writeFrame sends one frame: [opcode LE u32][length LE u32][payload].
func writeFrame(conn net.Conn, opcode uint32, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], opcode)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err = conn.Write(payload)
	return err
}

// readFrame reads one frame, allocating a buffer of the exact size
// declared in the header.
func readFrame(conn net.Conn, wantOpcode uint32, v any) error {
	header := make([]byte, 8)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	opcode := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if opcode != wantOpcode {
		return fmt.Errorf("unexpected opcode %d", opcode)
	}
	if length > maxFrameBytes {
		return fmt.Errorf("frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
