// Package xtb retrieves account reports from the XTB xStation websocket API.
//
// See http://developers.xstore.pro/documentation/. A Session is a persistent
// connection: it must log in before the first command and log out at the end.
package xtb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/etnz/brokerage"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	// RealURL is the real account endpoint.
	RealURL = "wss://ws.xtb.com/real"
	// DemoURL is the demo account endpoint.
	DemoURL = "wss://ws.xtb.com/demo"
)

// Command is a request template sent over the session.
type Command struct {
	Command   string         `json:"command"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Commands are command templates by name.
type Commands map[string]Command

// DefaultCommands are the commands used by Fetch.
var DefaultCommands = Commands{
	"trades":  {Command: "getTrades", Arguments: map[string]any{"openedOnly": true}},
	"margin":  {Command: "getMarginLevel"},
	"symbols": {Command: "getAllSymbols"},
	"logout":  {Command: "logout"},
}

// commandOf maps a report kind to the command returning it.
var commandOf = map[brokerage.Kind]string{
	brokerage.Cash:        "margin",
	brokerage.Portfolio:   "trades",
	brokerage.Instruments: "symbols",
}

// LoadCommands reads command templates from a JSON file, on top of DefaultCommands.
//
//	{"login": {"command": "login", "arguments": {"userId": "1000", "password": "..."}},
//	 "trades": {"command": "getTrades", "arguments": {"openedOnly": true}}}
func LoadCommands(path string) (Commands, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read xtb commands: %w", err)
	}
	var loaded Commands
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("could not decode xtb commands json: %w", err)
	}
	commands := make(Commands, len(DefaultCommands)+len(loaded))
	for k, v := range DefaultCommands {
		commands[k] = v
	}
	for k, v := range loaded {
		commands[k] = v
	}
	return commands, nil
}

// Session is a command/response link over a websocket. Commands are serialised: one
// request is sent, and its response read, at a time.
type Session struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	commands Commands
	loggedIn bool
}

// Dial opens a session. It is not logged in yet.
func Dial(ctx context.Context, url string, commands Commands) (*Session, error) {
	if commands == nil {
		commands = DefaultCommands
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &brokerage.TransportError{Broker: "xtb", Op: "dial", Err: err}
	}
	return &Session{conn: conn, commands: commands}, nil
}

// response is the envelope of every reply.
type response struct {
	Status     bool   `json:"status"`
	ErrorCode  string `json:"errorCode"`
	ErrorDescr string `json:"errorDescr"`
}

// Login sends the login command. Credentials, when set, override the arguments of
// the "login" template.
func (s *Session) Login(ctx context.Context, user, password string) error {
	cmd, ok := s.commands["login"]
	if !ok {
		cmd = Command{Command: "login"}
	}
	args := make(map[string]any, len(cmd.Arguments)+2)
	for k, v := range cmd.Arguments {
		args[k] = v
	}
	if user != "" {
		args["userId"] = user
	}
	if password != "" {
		args["password"] = password
	}
	if args["userId"] == nil {
		return errors.New("xtb login requires a user id")
	}
	cmd.Arguments = args
	if _, err := s.do(ctx, "login", cmd); err != nil {
		return err
	}
	s.loggedIn = true
	log.Printf("xtb: logged in as %v", args["userId"])
	return nil
}

// Logout ends the login, the connection stays open until Close.
func (s *Session) Logout(ctx context.Context) error {
	if !s.loggedIn {
		return nil
	}
	if _, err := s.Send(ctx, "logout"); err != nil {
		return err
	}
	s.loggedIn = false
	log.Println("xtb: logged out")
	return nil
}

// Close logs out if needed and closes the connection.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Logout(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return errors.Join(err, s.conn.Close())
}

// Fetch implements brokerage.Fetcher.
func (s *Session) Fetch(ctx context.Context, kind brokerage.Kind) (brokerage.Payload, error) {
	name, ok := commandOf[kind]
	if !ok {
		return nil, fmt.Errorf("%w: xtb does not report %s", brokerage.ErrUnknownReportKind, kind)
	}
	return s.Send(ctx, name)
}

// Send sends the named command and returns the whole response.
func (s *Session) Send(ctx context.Context, name string) (brokerage.Payload, error) {
	cmd, ok := s.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown xtb command %q", brokerage.ErrUnknownReportKind, name)
	}
	return s.do(ctx, name, cmd)
}

func (s *Session) do(ctx context.Context, name string, cmd Command) (brokerage.Payload, error) {
	req, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("cannot encode xtb command %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, _ := ctx.Deadline() // zero means no deadline
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return nil, &brokerage.TransportError{Broker: "xtb", Op: name, Err: err}
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, &brokerage.TransportError{Broker: "xtb", Op: name, Err: err}
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &brokerage.TransportError{Broker: "xtb", Op: name, Body: data, Err: err}
	}
	if !resp.Status {
		return nil, &brokerage.TransportError{Broker: "xtb", Op: name, Code: resp.ErrorCode, Body: []byte(resp.ErrorDescr)}
	}
	return brokerage.Payload(data), nil
}
