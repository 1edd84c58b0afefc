// Package session holds what the terminal hosts share: the conversation
// surface they drive, in-session commands and the texts shown to the user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scorzo/cloudcost/internal/chat"
	"github.com/scorzo/cloudcost/internal/mcp"
)

type Conversation interface {
	SendMessage(ctx context.Context, text string) (string, error)
	Reset()
	Subscribe(fn func(chat.Event)) func()
}

type Command int

const (
	CmdMessage Command = iota
	CmdEmpty
	CmdQuit
	CmdHelp
	CmdReset
)

// ParseCommand classifies a line of user input and returns it trimmed.
func ParseCommand(line string) (Command, string) {
	trimmed := strings.TrimSpace(line)
	switch strings.ToLower(trimmed) {
	case "":
		return CmdEmpty, trimmed
	case "quit", "exit":
		return CmdQuit, trimmed
	case "help":
		return CmdHelp, trimmed
	case "reset", "clear":
		return CmdReset, trimmed
	}
	return CmdMessage, trimmed
}

const (
	WaitMessage  = "Please wait for the current request to complete..."
	Goodbye      = "Thank you for using Cloud Cost Comparison Assistant!"
	ResetMessage = "Conversation history cleared."
	Thinking     = "[Thinking...]"
)

// IsFatal reports if err means the tool server is gone and the session has
// to end.
func IsFatal(err error) bool {
	var exitErr *mcp.UnexpectedExitError
	var startErr *mcp.StartupError
	return errors.Is(err, mcp.ErrNotConnected) ||
		errors.Is(err, mcp.ErrConnectionLost) ||
		errors.As(err, &exitErr) ||
		errors.As(err, &startErr)
}

func ToolCallLine(name string) string {
	return fmt.Sprintf("[Calling tool: %v]", name)
}

func Welcome(mode string) string {
	rule := strings.Repeat("=", 60)
	var sb strings.Builder
	sb.WriteString(rule + "\n")
	sb.WriteString("Cloud Cost Comparison Assistant\n")
	sb.WriteString(rule + "\n")
	if mode != "" {
		sb.WriteString("Mode: " + mode + "\n")
	}
	sb.WriteString(`
I'll help you compare your AWS instance costs with our
alternative cloud platform.

To get started, tell me about your current AWS setup. I need:
  - Instance types (e.g., t3.micro, m5.large)
  - How many of each
  - Which AWS region
  - Usage hours per month (I'll assume 24/7 if not specified)

Type "quit" or "exit" to end the conversation.
Type "help" for more information, "reset" to start over.
`)
	sb.WriteString(rule + "\n")
	return sb.String()
}

const Help = `------------------------------------------------------------
Help Information
------------------------------------------------------------

This tool compares AWS EC2 instance costs with alternative
cloud pricing to help you understand potential savings.

Ask "which instances are supported?" for the current list of
instance types and regions.

Example Usage:
  "I'm running 3 t3.micro instances in us-east-1"
  "Compare 2 m5.large and 5 t3.small in us-west-2"
  "What about 10 c5.xlarge in eu-west-1, running 12 hours/day"

Commands:
  help          show this message
  reset, clear  forget the conversation so far
  quit, exit    leave
------------------------------------------------------------
`
