package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/control-assessor/internal/app"
	"github.com/example/control-assessor/internal/conversation"
	"github.com/example/control-assessor/internal/report"
)

const chatHelp = `Describe a control to assess it; later messages discuss the assessment.
Commands: /report, /save [path], /reset, /help, /quit`

var chatMode string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session: assess a control, then discuss it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, stop := app.NotifyContext(cmd.Context())
		defer stop()
		return chatLoop(ctx, a, chatMode, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "conversational or assess_only (default from config)")
}

func chatLoop(ctx context.Context, a *app.App, mode string, in io.Reader, out io.Writer) error {
	s, err := a.Sessions.Create(mode)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, chatHelp)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := chatCommand(s, line, out); quit {
				return nil
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		streamed := false
		reply, err := s.Submit(ctx, line, conversation.Listener{
			Progress: printProgress(out),
			Fragment: func(f string) {
				streamed = true
				fmt.Fprint(out, f)
			},
		})
		if err != nil {
			if streamed {
				fmt.Fprintln(out)
			}
			if reply.Assessment != nil {
				printPartial(out, *reply.Assessment)
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if reply.Kind == conversation.KindAssessment {
			fmt.Fprint(out, render(reply.Turn.Content))
		} else {
			fmt.Fprintln(out)
		}
	}
}

// chatCommand handles one slash command and reports whether to quit.
func chatCommand(s *conversation.Session, line string, out io.Writer) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/reset":
		s.Reset()
		fmt.Fprintln(out, "conversation reset")
	case "/report":
		a, ok := s.Assessment()
		if !ok {
			fmt.Fprintln(out, "no assessment yet")
			return false
		}
		fmt.Fprint(out, render(report.Format(a)))
	case "/save":
		art, ok := s.Artifact()
		if !ok {
			fmt.Fprintln(out, "no assessment yet")
			return false
		}
		if arg == "" {
			arg = art.Name
		}
		if err := os.WriteFile(arg, art.Data, 0o644); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "saved %s\n", arg)
	default:
		fmt.Fprintf(out, "unknown command %s\n", name)
	}
	return false
}
