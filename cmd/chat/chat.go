package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"declarations/client"
	"declarations/logging"
	"declarations/models"
	"declarations/resilience"
	"declarations/tools"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "chat",
		Usage: "declare business expenses by chatting with the assistant",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Value: "http://localhost:3000", Usage: "base url of the chat server", Sources: cli.EnvVars("DECLARATIONS_SERVER")},
			&cli.IntFlag{Name: "maxsteps", Value: client.DefaultMaxSteps, Usage: "maximum automatic resubmissions per message", Sources: cli.EnvVars("DECLARATIONS_MAX_STEPS")},
			&cli.IntFlag{Name: "retries", Value: 2, Usage: "retries for a chat request that fails before streaming", Sources: cli.EnvVars("DECLARATIONS_RETRIES")},
			&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Value: 3 * time.Minute, Usage: "timeout for one message including resubmissions", Sources: cli.EnvVars("DECLARATIONS_TIMEOUT")},
			&cli.StringFlag{Name: "loglevel", Value: "warn", Usage: "log level (debug, info, warn, error)", Sources: cli.EnvVars("LOG_LEVEL")},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.InitLogger(os.Stderr, c.String("loglevel"))

	api := client.NewHTTPChatAPI(c.String("server"), nil, resilience.NewRetryPolicy(c.Int("retries"), 500*time.Millisecond), logger)

	out := os.Stdout
	session := client.NewSession(api, tools.NewRegistry(nil),
		client.WithMaxSteps(c.Int("maxsteps")),
		client.WithLogger(logger),
		client.WithObserver(newObserver(out)),
	)

	return converse(ctx, session, os.Stdin, out, c.Duration("timeout"))
}

func newObserver(out io.Writer) client.Observer {
	return client.Observer{
		OnText: func(text string) { fmt.Fprint(out, text) },
		OnToolResult: func(inv models.ToolInvocation) {
			fmt.Fprintf(out, "\n  [%s] %s\n", inv.ToolName, inv.Result)
		},
		OnConfirmationRequested: func(id string) {
			fmt.Fprintln(out, "\n  the assistant asks you to confirm the declaration")
		},
		OnError: func(message string) { fmt.Fprintf(out, "\n  error: %s\n", message) },
	}
}

// converse reads user input line by line until EOF, "/quit" or ctx ends.
// "/attach <path>" queues a file for the next message and "/history" reprints
// the visible transcript.
func converse(ctx context.Context, session *client.Session, in io.Reader, out io.Writer, timeout time.Duration) error {
	fmt.Fprintf(out, "assistant: %s\n", client.Greeting)

	var attachments []models.Attachment
	scanner := bufio.NewScanner(in)
	for {
		_, pending := session.PendingConfirmation()
		if pending {
			fmt.Fprint(out, "\n"+confirmPrompt+" [y/n] ")
		} else {
			fmt.Fprint(out, "\nyou: ")
		}

		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		if line == "/history" {
			renderTranscript(out, session.VisibleMessages())
			continue
		}
		if path, ok := strings.CutPrefix(line, "/attach "); ok && !pending {
			att, err := client.AttachmentFromFile(strings.TrimSpace(path))
			if err != nil {
				fmt.Fprintf(out, "  %v\n", err)
				continue
			}
			attachments = append(attachments, att)
			fmt.Fprintf(out, "  attached %s (%s), it is sent with your next message\n", att.Name, att.ContentType)
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		fmt.Fprint(out, "assistant: ")
		var err error
		if pending {
			yes, ok := parseAnswer(line)
			if !ok {
				cancel()
				fmt.Fprintln(out, "please answer y or n")
				continue
			}
			err = session.Confirm(reqCtx, yes)
		} else {
			err = session.Send(reqCtx, line, attachments...)
			attachments = nil
		}
		cancel()
		fmt.Fprintln(out)

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			fmt.Fprintln(out, "  the assistant took too long, try again")
		default:
			fmt.Fprintf(out, "  failed: %v\n", err)
		}

		renderDeclaration(out, session.Declaration())
	}
}

func parseAnswer(line string) (yes bool, ok bool) {
	switch strings.ToLower(line) {
	case "y", "yes", "j", "ja":
		return true, true
	case "n", "no", "nee":
		return false, true
	}
	return false, false
}
