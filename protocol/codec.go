// File: protocol/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request parsing and response framing.

package protocol

import "strings"

// Command identifies a protocol keyword.
type Command int

const (
	CmdUnknown Command = iota
	CmdEcho
	CmdTime
	CmdQuit
)

func (c Command) String() string {
	switch c {
	case CmdEcho:
		return "echo"
	case CmdTime:
		return "time"
	case CmdQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Terminator ends every request and response line on the wire.
const Terminator = '\n'

// QuitAck is the literal acknowledgment sent before closing on quit.
const QuitAck = "quit"

// UsageMessage is returned for any line that is not a valid command.
const UsageMessage = "Error input.\n" +
	"\"time (GMT, CST...etc)\" to get current time\n" +
	"\"echo (Hello...etc)\" to get echo response\n" +
	"\"quit\" to close connection."

// Request is a parsed request line.
type Request struct {
	Command  Command
	Argument string
}

// Response is the result of executing a Request.
type Response struct {
	Text string
	// Close asks the server to close the connection once Text is flushed.
	Close bool
}

// ParseLine splits a line into keyword and argument at the first space.
// A line without a space is a command only when it is exactly "quit".
func ParseLine(line string) Request {
	keyword, arg, found := strings.Cut(line, " ")
	if !found {
		if line == "quit" {
			return Request{Command: CmdQuit}
		}
		return Request{Command: CmdUnknown}
	}
	switch keyword {
	case "echo":
		return Request{Command: CmdEcho, Argument: arg}
	case "time":
		return Request{Command: CmdTime, Argument: arg}
	case "quit":
		// "quit <anything>" is still a quit, as the keyword matches.
		return Request{Command: CmdQuit, Argument: arg}
	default:
		return Request{Command: CmdUnknown}
	}
}

// Frame appends the line terminator to a response.
func Frame(text string) []byte {
	b := make([]byte, 0, len(text)+1)
	b = append(b, text...)
	return append(b, Terminator)
}
