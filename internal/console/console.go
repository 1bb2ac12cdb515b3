// Package console is a terminal stand-in for the chat transport: one
// conversation, numbered options, slash commands for uploads.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"supplyrecon/internal"
	"supplyrecon/internal/extract"
	"supplyrecon/internal/session"
)

type Engine interface {
	StartResolution(ctx context.Context, conversation string, draft internal.DraftInvoice) (session.Outcome, error)
	SubmitChoice(ctx context.Context, conversation, token string) (session.Outcome, error)
	Active(ctx context.Context, conversation string) (*session.Session, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, kind internal.FileKind) (internal.DraftInvoice, error)
}

type Console struct {
	engine       Engine
	extractor    Extractor
	conversation string
	out          io.Writer
	prompt       *session.Prompt
	// OnOutcome, when set, sees every outcome after it is rendered.
	OnOutcome func(session.Outcome)
}

func New(engine Engine, extractor Extractor, conversation string, out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{engine: engine, extractor: extractor, conversation: conversation, out: out}
}

const help = `Commands:
  /upload <file>   start an import from an invoice file
  /pending         show the open question
  /cancel          drop the open import
  /quit            leave
Answer a question with the option number or its token.`

// Run reads lines until /quit, EOF or interrupt.
func (c *Console) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "supplyrecon> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	c.out = rl.Stdout()

	fmt.Fprintf(c.out, "conversation %s\n%s\n", c.conversation, help)
	if err := c.showPending(ctx); err != nil {
		return err
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := c.Handle(ctx, line)
		if err != nil {
			errColor.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Handle processes one input line. Errors are reported, never fatal.
func (c *Console) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(c.out, help)
		return false, nil
	case "/pending":
		return false, c.showPending(ctx)
	case "/upload":
		return false, c.upload(ctx, strings.TrimSpace(arg))
	case "/cancel":
		return false, c.choose(ctx, session.TokenCancel)
	}
	if strings.HasPrefix(cmd, "/") {
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, c.choose(ctx, c.tokenFor(line))
}

// tokenFor turns "2" into the second option's token; anything else is
// passed through as a token.
func (c *Console) tokenFor(input string) string {
	n, err := strconv.Atoi(input)
	if err != nil || c.prompt == nil || n < 1 || n > len(c.prompt.Options) {
		return input
	}
	return c.prompt.Options[n-1].Token
}

func (c *Console) upload(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("usage: /upload <file>")
	}
	kind, ok := extract.KindFromFilename(path)
	if !ok {
		return fmt.Errorf("unsupported file type: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	draft, err := c.extractor.Extract(ctx, data, kind)
	if err != nil {
		return err
	}
	out, err := c.engine.StartResolution(ctx, c.conversation, draft)
	if err != nil {
		return err
	}
	c.show(out)
	return nil
}

func (c *Console) choose(ctx context.Context, token string) error {
	out, err := c.engine.SubmitChoice(ctx, c.conversation, token)
	if err != nil {
		return err
	}
	c.show(out)
	return nil
}

func (c *Console) showPending(ctx context.Context) error {
	s, err := c.engine.Active(ctx, c.conversation)
	if err != nil {
		return err
	}
	if s == nil {
		c.prompt = nil
		dimColor.Fprintln(c.out, "no open import")
		return nil
	}
	c.prompt = s.Prompt
	RenderPrompt(c.out, s.Prompt)
	return nil
}

func (c *Console) show(out session.Outcome) {
	c.prompt = out.Prompt
	Render(c.out, out)
	if c.OnOutcome != nil {
		c.OnOutcome(out)
	}
}
