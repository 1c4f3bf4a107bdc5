package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/drover-ai/drover/pkg/events"
	"github.com/drover-ai/drover/pkg/runtime"
	"github.com/drover-ai/drover/pkg/server"
)

// RunCmd runs an agent in-process, without the server. With a task argument
// it is a one-shot call; without one it reads the task from a pipe, or opens
// an interactive session when stdin is a terminal.
type RunCmd struct {
	Agent   string `arg:"" help:"Agent name from the config."`
	Task    string `arg:"" optional:"" help:"Task text. Omit to read from stdin or go interactive."`
	Session string `help:"Session id to continue."`
	Stream  bool   `default:"true" negatable:"" help:"Print events while the agent works (use --no-stream to disable)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	defer loader.Close()

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Shutdown(context.Background()); err != nil {
			slog.Warn("Shutdown finished with errors", "error", err)
		}
	}()

	task := strings.TrimSpace(c.Task)
	if task == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		task = strings.TrimSpace(string(data))
		if task == "" {
			return fmt.Errorf("no task given")
		}
	}

	if task != "" {
		return c.runOnce(ctx, rt, task)
	}
	return c.runInteractive(ctx, rt)
}

func (c *RunCmd) runOnce(ctx context.Context, rt *runtime.Runtime, task string) error {
	res, err := c.execute(ctx, rt, c.Session, task)
	if err != nil {
		return err
	}

	printResult(res.Result)
	if c.Session == "" {
		fmt.Fprintf(os.Stderr, "session: %s\n", res.SessionID)
	}
	return nil
}

func (c *RunCmd) runInteractive(ctx context.Context, rt *runtime.Runtime) error {
	fmt.Printf("\n💬 Interactive session with %s. /quit to end.\n\n", c.Agent)

	sessionID := c.Session
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("You: ")

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			fmt.Println("👋 Bye.")
			return nil
		}

		res, err := c.execute(ctx, rt, sessionID, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("❌ Error: %v\n\n", err)
			continue
		}
		sessionID = res.SessionID

		fmt.Printf("\n%s: ", c.Agent)
		printResult(res.Result)
		fmt.Println()
	}
}

// execute runs one task, draining events to stderr while the run is live so
// piped stdout carries only the result.
func (c *RunCmd) execute(ctx context.Context, rt *runtime.Runtime, sessionID, task string) (server.RunResult, error) {
	opts := runtime.TaskOptions{SessionID: sessionID}

	var ch *events.Channel
	var done chan struct{}
	if c.Stream {
		ch = events.NewChannel(256)
		opts.Emitter = ch
		done = make(chan struct{})
		go func() {
			defer close(done)
			for ev := range ch.Events() {
				printEvent(ev)
			}
		}()
	}

	res, err := rt.RunTask(ctx, c.Agent, task, opts)
	if ch != nil {
		ch.Close()
		<-done
	}
	return res, err
}

func printEvent(ev events.Event) {
	if ev.Name == events.StatusEvent {
		if s, ok := ev.Payload["status"].(string); ok {
			fmt.Fprintf(os.Stderr, "· %s\n", s)
		}
		return
	}

	parts := strings.Split(ev.Name, "/")
	if len(parts) != 3 || parts[0] != "tools" {
		return
	}
	name, phase := parts[1], parts[2]
	switch phase {
	case "start":
		fmt.Fprintf(os.Stderr, "  → %s\n", name)
	case "end":
		fmt.Fprintf(os.Stderr, "  ✓ %s\n", name)
	case "error":
		msg, _ := ev.Payload["exception"].(string)
		fmt.Fprintf(os.Stderr, "  ✗ %s: %s\n", name, msg)
	}
}

// printResult favors the terminate message; anything without one prints as
// indented JSON.
func printResult(result any) {
	switch v := result.(type) {
	case nil:
		return
	case string:
		fmt.Println(v)
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			fmt.Println(msg)
			return
		}
		printJSON(v)
	default:
		printJSON(v)
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(data))
}
