// Package command parses the "stt ..." chat commands that drive recording
// and message delivery.
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Command is one parsed control command.
type Command int

const (
	Unknown Command = iota
	Toggle          // stt talk
	Start           // stt start
	Stop            // stt stop
	Accept          // stt accept
	Next            // stt next
	Prev            // stt prev
)

const prefix = "stt"

var names = map[string]Command{
	"talk":     Toggle,
	"start":    Start,
	"stop":     Stop,
	"accept":   Accept,
	"next":     Next,
	"prev":     Prev,
	"previous": Prev,
}

func (c Command) String() string {
	switch c {
	case Toggle:
		return "talk"
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Accept:
		return "accept"
	case Next:
		return "next"
	case Prev:
		return "prev"
	}
	return "unknown"
}

// Parse recognizes "stt <verb>", case-insensitive with surrounding and
// repeated whitespace ignored. Anything else is Unknown.
func Parse(line string) (Command, bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) != 2 || fields[0] != prefix {
		return Unknown, false
	}
	c, ok := names[fields[1]]
	return c, ok
}

// Listen reads commands line by line from r and calls fn for each
// recognized one until r is exhausted or ctx is cancelled. Unrecognized
// lines go to onUnknown when it is set.
func Listen(ctx context.Context, r io.Reader, fn func(Command), onUnknown func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("failed to read commands: %w", err)
					}
				default:
				}
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if c, ok := Parse(line); ok {
				fn(c)
			} else if onUnknown != nil {
				onUnknown(line)
			}
		}
	}
}
