package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RichardoC/relaychat/internal/client"
	"github.com/RichardoC/relaychat/internal/linesplit"
	"github.com/RichardoC/relaychat/internal/models"
	"github.com/RichardoC/relaychat/internal/prompts"
)

type chatOptions struct {
	server string
	prompt string
	render bool
	width  int
}

func newChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running relay from the terminal",
		Long: `Start an interactive chat against a relaychat server.

Replies stream in as they arrive. Type /new to start a fresh conversation
and /exit or /quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "http://localhost:8100", "Relay base URL")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", prompts.DefaultID, "System prompt preset (see 'relaychat prompts')")
	cmd.Flags().BoolVarP(&opts.render, "render", "r", false, "Render finished replies as markdown instead of streaming them")
	cmd.Flags().IntVar(&opts.width, "width", 0, "Word wrap width for rendered replies (default terminal width)")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, opts *chatOptions) error {
	preset, ok := prompts.Lookup(opts.prompt)
	if !ok {
		return fmt.Errorf("unknown prompt preset %q", opts.prompt)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.width <= 0 {
		opts.width = terminalWidth()
	}

	transport := client.NewHTTPTransport(opts.server, nil)
	printer := &replyPrinter{out: out, stream: !opts.render}
	session := client.NewSession(transport, preset.Content, printer.update)

	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("Chatting via %s as %q. /new starts over, /exit quits.", opts.server, preset.Label)))
	fmt.Fprint(out, promptStyle.Render("you> "))

	for line, err := range linesplit.Lines(in) {
		if err != nil {
			return err
		}

		switch input := strings.TrimSpace(line); input {
		case "":
		case "/exit", "/quit":
			return nil
		case "/new":
			session = client.NewSession(transport, preset.Content, printer.update)
			fmt.Fprintln(out, dimStyle.Render("Started a new conversation."))
		default:
			printer.reset()
			err := session.Submit(ctx, input)
			printer.finish(session.Snapshot(), opts.width)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			}
		}
		fmt.Fprint(out, promptStyle.Render("you> "))
	}
	fmt.Fprintln(out)
	return nil
}

// replyPrinter writes the assistant's reply as session snapshots arrive.
type replyPrinter struct {
	out     io.Writer
	stream  bool
	printed int
	errs    int
}

func (p *replyPrinter) reset() {
	p.printed, p.errs = 0, 0
}

func (p *replyPrinter) update(s client.Snapshot) {
	if len(s.InlineErrors) > p.errs {
		for _, msg := range s.InlineErrors[p.errs:] {
			fmt.Fprintf(p.out, "\n%s\n", warnStyle.Render("! "+msg))
		}
		p.errs = len(s.InlineErrors)
	}

	if !p.stream || s.State != client.Streaming || len(s.Messages) == 0 {
		return
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != models.RoleAssistant || len(last.Content) <= p.printed {
		return
	}
	io.WriteString(p.out, last.Content[p.printed:])
	p.printed = len(last.Content)
}

func (p *replyPrinter) finish(s client.Snapshot, width int) {
	if p.stream {
		if p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		return
	}

	if len(s.Messages) == 0 {
		return
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role == models.RoleAssistant && last.Content != "" {
		fmt.Fprint(p.out, renderMarkdown(last.Content, width))
	}
}
