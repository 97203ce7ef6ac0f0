package control

import (
	"fmt"
	"net"
	"time"
)

// Client talks to a running daemon over the control socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the control socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req Request) (Response, error) {
	if err := writeFrame(c.conn, opRequest, req); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}
	var resp Response
	if err := readFrame(c.conn, opResponse, &resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp, nil
}

// Root returns the browse root id for this client.
func (c *Client) Root() (string, error) {
	resp, err := c.roundTrip(Request{Cmd: CmdRoot})
	if err != nil {
		return "", err
	}
	return resp.Root, nil
}

// Children lists the items under parent.
func (c *Client) Children(parent string) ([]ItemInfo, error) {
	resp, err := c.roundTrip(Request{Cmd: CmdChildren, Parent: parent})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// PlayFromID starts playback of the item with the given id.
func (c *Client) PlayFromID(id string) error {
	_, err := c.roundTrip(Request{Cmd: CmdPlayFromID, ID: id})
	return err
}

// Play resumes playback of the current item.
func (c *Client) Play() error {
	_, err := c.roundTrip(Request{Cmd: CmdPlay})
	return err
}

// Pause pauses playback.
func (c *Client) Pause() error {
	_, err := c.roundTrip(Request{Cmd: CmdPause})
	return err
}

// Stop stops playback.
func (c *Client) Stop() error {
	_, err := c.roundTrip(Request{Cmd: CmdStop})
	return err
}

// Seek repositions playback within the current item.
func (c *Client) Seek(pos time.Duration) error {
	_, err := c.roundTrip(Request{Cmd: CmdSeek, Position: pos.Milliseconds()})
	return err
}

// Status returns the current playback snapshot.
func (c *Client) Status() (StatusInfo, error) {
	resp, err := c.roundTrip(Request{Cmd: CmdStatus})
	if err != nil {
		return StatusInfo{}, err
	}
	if resp.Status == nil {
		return StatusInfo{}, fmt.Errorf("daemon: empty status")
	}
	return *resp.Status, nil
}

// History returns up to limit recent plays, newest first.
func (c *Client) History(limit int) ([]PlayInfo, error) {
	resp, err := c.roundTrip(Request{Cmd: CmdHistory, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Plays, nil
}
