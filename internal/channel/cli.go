package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"personabot/internal/domain"
)

const cliRoomID = "cli_session"

// CLI implements domain.Channel for interactive terminal chat with one agent.
// Each line is one turn; the prompt returns once the run has finished.
type CLI struct {
	agentID string
	userID  string
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer

	outMu     sync.Mutex
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	AgentID string
	UserID  string // defaults to "cli_user"
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UserID == "" {
		cfg.UserID = "cli_user"
	}
	return &CLI{
		agentID: cfg.AgentID,
		userID:  cfg.UserID,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until ctx ends or the user quits.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.printf("Chatting with %s. Type your message and press Enter. Type /quit to exit.\n", c.agentID)
	c.printf("You> ")

	lines := make(chan string)
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err // nil on EOF
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			c.printf("You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		done := make(chan struct{})
		var once sync.Once
		c.startThinking()
		bus.Publish(domain.Envelope{
			Input: domain.InputObject{
				Source:     domain.SourceCLI,
				AgentID:    c.agentID,
				UserID:     c.userID,
				RoomID:     cliRoomID,
				Type:       domain.TypeText,
				Text:       line,
				ReceivedAt: time.Now(),
			},
			Responder: &cliResponder{cli: c},
			Done:      func() { once.Do(func() { close(done) }) },
		})

		select {
		case <-done:
		case <-ctx.Done():
			c.stopThinking()
			return nil
		}
		c.stopThinking()
		c.printf("You> ")
	}
}

func (c *CLI) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	stop := c.thinkStop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.printf("\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	c.printf("\r\033[K") // clear spinner line
}

type cliResponder struct {
	cli *CLI
}

func (r *cliResponder) Send(ctx context.Context, content string) error {
	r.cli.stopThinking()
	r.cli.printf("%s> %s\n", r.cli.agentID, content)
	return nil
}

func (r *cliResponder) Error(ctx context.Context, err error) error {
	r.cli.stopThinking()
	r.cli.printf("error: %v\n", err)
	return nil
}
