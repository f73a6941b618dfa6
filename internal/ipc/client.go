package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a synchronous protocol client used by the control CLI and by
// tests. One request is in flight at a time.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	seq    uint64
}

// Dial connects to the daemon socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Hello performs the protocol handshake.
func (c *Client) Hello(name, version string) (*HelloAck, error) {
	resp, err := c.Call(TypeHello, &Hello{
		ClientName:      name,
		ClientVersion:   version,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		return nil, err
	}
	var ack HelloAck
	if err := resp.DecodePayload(&ack); err != nil {
		return nil, err
	}
	if ack.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("protocol version mismatch: daemon speaks %d", ack.ProtocolVersion)
	}
	return &ack, nil
}

// Call sends a request and waits for its response, skipping over any event
// envelopes that arrive in between.
func (c *Client) Call(msgType string, payload any) (*Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	seq := c.seq

	env, err := NewEnvelope(msgType, seq, payload)
	if err != nil {
		return nil, err
	}
	if err := c.write(env); err != nil {
		return nil, err
	}

	for {
		resp, err := c.read(30 * time.Second)
		if err != nil {
			return nil, err
		}
		if resp.Seq != seq {
			continue
		}
		if resp.Type == TypeError {
			var er ErrorReply
			if err := resp.DecodePayload(&er); err != nil {
				return nil, fmt.Errorf("daemon error (undecodable)")
			}
			return nil, fmt.Errorf("daemon error: %s", er.Message)
		}
		return resp, nil
	}
}

// Send dispatches a fire-and-forget envelope without waiting for a reply.
func (c *Client) Send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := NewEnvelope(msgType, 0, payload)
	if err != nil {
		return err
	}
	return c.write(env)
}

// Subscribe registers for pushed events. Use Next to receive them.
func (c *Client) Subscribe() error {
	_, err := c.Call(TypeSubscribe, nil)
	return err
}

// Next blocks until the next envelope arrives. Intended for event
// streaming after Subscribe; timeout zero means wait forever.
func (c *Client) Next(timeout time.Duration) (*Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(timeout)
}

func (c *Client) write(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write to daemon: %w", err)
	}
	return nil
}

func (c *Client) read(timeout time.Duration) (*Envelope, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read from daemon: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
