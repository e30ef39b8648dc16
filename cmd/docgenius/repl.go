package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/docgenius/internal/cli"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/session"
)

// chatREPL reads questions line by line and answers them from one session.
type chatREPL struct {
	session *session.Session
	sources ingest.Sources
	in      io.Reader
	out     io.Writer
}

const replHelp = "Commands: /rebuild, /clear, /history, /help, /quit"

// Run loops until EOF, /quit, or ctx is done. Errors from a single question are printed
// and the loop continues.
func (r *chatREPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "docgenius chat. "+replHelp)
	if r.session.State() == session.StateNoIndex {
		fmt.Fprintln(r.out, "No index loaded. Type /rebuild to index the source folder.")
	}
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(r.out, replHelp)
		case "/clear":
			r.session.ClearHistory()
			fmt.Fprintln(r.out, "History cleared.")
		case "/history":
			cli.WriteTranscript(r.out, r.session.Transcript())
		case "/rebuild":
			report, _, err := r.session.Build(ctx, r.sources)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				continue
			}
			_ = cli.WriteBuildReport(r.out, report, cli.OutputText)
		default:
			if strings.HasPrefix(line, "/") {
				fmt.Fprintf(r.out, "Unknown command %s. %s\n", line, replHelp)
				continue
			}
			ans, _, err := r.session.Ask(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				continue
			}
			_ = cli.WriteAnswer(r.out, ans, cli.OutputText)
		}
	}
}
