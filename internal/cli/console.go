package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rcliao/exsim/internal/engine"
	"github.com/rcliao/exsim/internal/model"
)

// console prints engine events as they happen.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	errw  io.Writer
	json  bool
	names map[string]string
}

var _ engine.Listener = (*console)(nil)

func newConsole(out, errw io.Writer, asJSON bool) *console {
	return &console{out: out, errw: errw, json: asJSON, names: make(map[string]string)}
}

func (c *console) setName(profileID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[profileID] = displayName(name, profileID)
}

func (c *console) name(profileID string) string {
	if n, ok := c.names[profileID]; ok {
		return n
	}
	return profileID
}

func (c *console) event(kind, profileID string, fields map[string]any) {
	fields["event"] = kind
	fields["profile"] = profileID
	b, _ := json.Marshal(fields)
	fmt.Fprintln(c.out, string(b))
}

func (c *console) Typing(profileID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.json {
		c.event("typing", profileID, map[string]any{"on": on})
		return
	}
	if on {
		fmt.Fprintf(c.errw, "%s is typing…\n", c.name(profileID))
	}
}

func (c *console) Delivered(msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.json {
		c.event("delivered", msg.ProfileID, map[string]any{"message": msg})
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", c.name(msg.ProfileID), msg.Content)
}

func (c *console) Seen(profileID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.json {
		c.event("seen", profileID, map[string]any{"message_id": messageID})
	}
}

func (c *console) Failed(profileID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.json {
		c.event("failed", profileID, map[string]any{"error": err.Error()})
		return
	}
	fmt.Fprintf(c.errw, "error: %s: %v\n", profileID, err)
}

func (c *console) Warn(profileID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.json {
		c.event("warning", profileID, map[string]any{"error": err.Error()})
		return
	}
	fmt.Fprintf(c.errw, "warning: %s: %v\n", profileID, err)
}
