// Package repl is the line oriented session host, used when stdin isn't a
// terminal or when asked for plain output.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/scorzo/cloudcost/internal/chat"
	"github.com/scorzo/cloudcost/internal/session"
	"github.com/scorzo/cloudcost/internal/utils"
)

const prompt = "You: "

type Repl struct {
	conv  session.Conversation
	in    io.Reader
	out   io.Writer
	width int
	fatal <-chan error

	mu sync.Mutex
}

type Option func(*Repl)

// WithWidth wraps assistant replies at width. Zero disables wrapping.
func WithWidth(w int) Option {
	return func(r *Repl) { r.width = w }
}

// WithFatal ends the session with the first error received on ch.
func WithFatal(ch <-chan error) Option {
	return func(r *Repl) { r.fatal = ch }
}

func New(conv session.Conversation, in io.Reader, out io.Writer, opts ...Option) *Repl {
	r := &Repl{conv: conv, in: in, out: out}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repl) printf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, a...)
}

type turnResult struct {
	reply string
	err   error
}

// Run reads lines until the user quits, input ends or ctx is cancelled, all of
// which return utils.ErrUserInitiatedExit. A fatal tool server error is
// returned as is.
func (r *Repl) Run(ctx context.Context) error {
	unsubscribe := r.conv.Subscribe(func(ev chat.Event) {
		if ev.Kind == chat.EventToolCall {
			r.printf("\n%v\n", session.ToolCallLine(ev.Tool))
		}
	})
	defer unsubscribe()

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var turnDone chan turnResult
	inputClosed := false
	r.printf("%v", prompt)
	for {
		select {
		case <-ctx.Done():
			return utils.ErrUserInitiatedExit
		case err := <-r.fatal:
			r.printf("\n")
			return err
		case res := <-turnDone:
			turnDone = nil
			if err := r.renderTurn(res); err != nil {
				return err
			}
			if inputClosed {
				return utils.ErrUserInitiatedExit
			}
			r.printf("%v", prompt)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				inputClosed = true
				if turnDone == nil {
					r.printf("\n")
					return utils.ErrUserInitiatedExit
				}
				continue
			}
			cmd, text := session.ParseCommand(line)
			switch cmd {
			case session.CmdEmpty:
				if turnDone == nil {
					r.printf("%v", prompt)
				}
			case session.CmdQuit:
				r.printf("\n%v\n", session.Goodbye)
				return utils.ErrUserInitiatedExit
			case session.CmdHelp:
				r.printf("\n%v\n", session.Help)
				if turnDone == nil {
					r.printf("%v", prompt)
				}
			case session.CmdReset:
				if turnDone != nil {
					r.printf("%v\n", session.WaitMessage)
					continue
				}
				r.conv.Reset()
				r.printf("%v\n%v", session.ResetMessage, prompt)
			case session.CmdMessage:
				if turnDone != nil {
					r.printf("%v\n", session.WaitMessage)
					continue
				}
				r.printf("\n%v\n", session.Thinking)
				turnDone = make(chan turnResult, 1)
				go func(done chan<- turnResult) {
					reply, err := r.conv.SendMessage(ctx, text)
					done <- turnResult{reply: reply, err: err}
				}(turnDone)
			}
		}
	}
}

func (r *Repl) renderTurn(res turnResult) error {
	if res.err == nil {
		reply := res.reply
		if r.width > 0 {
			reply = utils.WrapText(reply, r.width)
		}
		r.printf("\nAssistant: %v\n\n", reply)
		return nil
	}
	if errors.Is(res.err, context.Canceled) {
		return utils.ErrUserInitiatedExit
	}
	if session.IsFatal(res.err) {
		ancli.Errf("tool server error: %v\n", res.err)
		return res.err
	}
	ancli.Errf("%v\n", res.err)
	r.printf("\nThe request failed. Please try again or restart.\n\n")
	return nil
}
