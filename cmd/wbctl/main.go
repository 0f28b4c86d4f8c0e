package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"
)

const WbctlVersion = "0.1.0"

const (
	replyTimeout = 5 * time.Second
	// accepted mutations are not acknowledged; a rejection arrives well within this
	confirmWait = 500 * time.Millisecond
)

func main() {
	usage := `Whiteboard relay control.

Connects to a running relay over WebSocket and sends or inspects events.

Usage:
    wbctl state [--url=<url>]
    wbctl watch [--url=<url>] [--count=<count>]
    wbctl add-line [--url=<url>] [--stroke=<color>] [--width=<width>] <pageKey> <coord>...
    wbctl remove [--url=<url>] <pageKey> <objectId>
    wbctl clear [--url=<url>] <pageKey>
    wbctl add-page [--url=<url>] <pageKey>
    wbctl change-page [--url=<url>] <pageKey>
    wbctl undo [--url=<url>] <pageKey>
    wbctl redo [--url=<url>] <pageKey>

Options:
    -h --help          Show this screen.
    --version          Show version.
    --url=<url>        Relay WebSocket URL [default: ws://localhost:5000/ws].
    --stroke=<color>   Line color as hex, defaults to the session color.
    --width=<width>    Line width [default: 2].
    --count=<count>    Exit after printing this many messages.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], WbctlVersion)
	if err != nil {
		logrus.Fatal(err)
	}

	if state_, _ := opts.Bool("state"); state_ {
		err = state(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(opts)
	} else if addLine_, _ := opts.Bool("add-line"); addLine_ {
		err = addLine(opts)
	} else if remove_, _ := opts.Bool("remove"); remove_ {
		err = remove(opts)
	} else if clear_, _ := opts.Bool("clear"); clear_ {
		err = sendPage(opts, "clearPage")
	} else if addPage_, _ := opts.Bool("add-page"); addPage_ {
		err = sendPage(opts, "addPage")
	} else if changePage_, _ := opts.Bool("change-page"); changePage_ {
		err = sendPage(opts, "changePage")
	} else if undo_, _ := opts.Bool("undo"); undo_ {
		err = history(opts, "undo")
	} else if redo_, _ := opts.Bool("redo"); redo_ {
		err = history(opts, "redo")
	}

	if err != nil {
		logrus.Fatal(err)
	}
}

// client is one relay connection past the initial handshake
type client struct {
	conn      *websocket.Conn
	state     json.RawMessage
	sessionID string
	color     string
}

func connect(opts docopt.Opts) (*client, error) {
	url, _ := opts.String("--url")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &client{conn: conn}
	for c.state == nil || c.sessionID == "" {
		msg, err := c.read(replyTimeout)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("handshake: %w", err)
		}

		var frame struct {
			Type      string          `json:"type"`
			State     json.RawMessage `json:"state"`
			SessionID string          `json:"sessionId"`
			Color     string          `json:"color"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			conn.Close()
			return nil, fmt.Errorf("decode handshake frame: %w", err)
		}
		switch frame.Type {
		case "initialState":
			c.state = frame.State
		case "session":
			c.sessionID = frame.SessionID
			c.color = frame.Color
		}
	}

	logrus.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"color":      c.color,
	}).Debug("connected")
	return c, nil
}

func (c *client) read(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

// confirm waits briefly for an error frame answering the last message sent.
// Silence means the relay applied it.
func (c *client) confirm() error {
	deadline := time.Now().Add(confirmWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		msg, err := c.read(remaining)
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := rejection(msg); err != nil {
			return err
		}
	}
}

func (c *client) send(msg []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// close says goodbye so the relay applies everything sent before it
func (c *client) close() {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

func state(opts docopt.Opts) error {
	c, err := connect(opts)
	if err != nil {
		return err
	}
	defer c.close()

	fmt.Fprintf(os.Stderr, "session %s color %s\n", c.sessionID, c.color)
	return printJSON(c.state)
}

func watch(opts docopt.Opts) error {
	limit := 0
	if countStr, err := opts.String("--count"); err == nil && countStr != "" {
		if limit, err = strconv.Atoi(countStr); err != nil {
			return fmt.Errorf("--count: %w", err)
		}
	}

	c, err := connect(opts)
	if err != nil {
		return err
	}
	defer c.close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		c.close()
	}()

	for seen := 0; limit == 0 || seen < limit; seen++ {
		msg, err := c.read(0)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := printJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func addLine(opts docopt.Opts) error {
	pageKey, _ := opts.String("<pageKey>")
	coords, _ := opts["<coord>"].([]string)
	stroke, _ := opts.String("--stroke")
	widthStr, _ := opts.String("--width")

	width, err := strconv.ParseFloat(widthStr, 64)
	if err != nil {
		return fmt.Errorf("--width: %w", err)
	}

	c, err := connect(opts)
	if err != nil {
		return err
	}
	defer c.close()

	if stroke == "" {
		stroke = c.color
	}
	msg, id, err := lineMessage(pageKey, coords, stroke, width)
	if err != nil {
		return err
	}

	if err := c.send(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := c.confirm(); err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func remove(opts docopt.Opts) error {
	pageKey, _ := opts.String("<pageKey>")
	objectID, _ := opts.String("<objectId>")

	msg, err := json.Marshal(map[string]string{
		"type":     "objectRemoved",
		"pageKey":  pageKey,
		"objectId": objectID,
	})
	if err != nil {
		return err
	}
	return sendOnce(opts, msg)
}

func sendPage(opts docopt.Opts, messageType string) error {
	pageKey, _ := opts.String("<pageKey>")
	return sendOnce(opts, pageMessage(messageType, pageKey))
}

// history sends undo or redo and prints the resulting page. A step past either
// end of the history produces no reply.
func history(opts docopt.Opts, messageType string) error {
	pageKey, _ := opts.String("<pageKey>")

	c, err := connect(opts)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.send(pageMessage(messageType, pageKey)); err != nil {
		return fmt.Errorf("send %s: %w", messageType, err)
	}

	for {
		msg, err := c.read(replyTimeout)
		if err != nil {
			if isTimeout(err) {
				fmt.Fprintf(os.Stderr, "nothing to %s on %s\n", messageType, pageKey)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if err := rejection(msg); err != nil {
			return err
		}

		var frame struct {
			Type    string `json:"type"`
			PageKey string `json:"pageKey"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
		if frame.Type == "updateState" && frame.PageKey == pageKey {
			return printJSON(msg)
		}
	}
}

func sendOnce(opts docopt.Opts, msg []byte) error {
	c, err := connect(opts)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.send(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return c.confirm()
}

// rejection returns the relay's complaint when msg is an error frame
func rejection(msg []byte) error {
	var frame struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if frame.Type == "error" {
		return fmt.Errorf("relay rejected message: %s", frame.Message)
	}
	return nil
}

func isTimeout(err error) bool {
	netErr, ok := err.(interface{ Timeout() bool })
	return ok && netErr.Timeout()
}

// lineMessage builds an objectAdded message for a pen line with a fresh id
func lineMessage(pageKey string, coords []string, stroke string, width float64) ([]byte, string, error) {
	if len(coords) < 2 || len(coords)%2 != 0 {
		return nil, "", fmt.Errorf("need an even number of coordinates, got %d", len(coords))
	}

	points := make([]float64, len(coords))
	for i, coord := range coords {
		v, err := strconv.ParseFloat(coord, 64)
		if err != nil {
			return nil, "", fmt.Errorf("coordinate %q: %w", coord, err)
		}
		points[i] = v
	}

	color, err := colorful.Hex(stroke)
	if err != nil {
		return nil, "", fmt.Errorf("--stroke: %w", err)
	}

	id := uuid.NewString()
	msg, err := json.Marshal(map[string]interface{}{
		"type":    "objectAdded",
		"pageKey": pageKey,
		"object": map[string]interface{}{
			"id":          id,
			"tool":        "pen",
			"points":      points,
			"stroke":      color.Hex(),
			"strokeWidth": width,
			"lineCap":     "round",
			"lineJoin":    "round",
			"tension":     0.5,
		},
	})
	if err != nil {
		return nil, "", err
	}
	return msg, id, nil
}

func pageMessage(messageType, pageKey string) []byte {
	msg, _ := json.Marshal(map[string]string{
		"type":    messageType,
		"pageKey": pageKey,
	})
	return msg
}

func printJSON(raw []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(os.Stdout)
	return err
}
