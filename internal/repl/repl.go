// Package repl provides the interactive shell for exercising the
// personalization engine: queries, feedback, and discovery control from
// one prompt.
package repl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/oaf-platform/leo/internal/types"
)

// Engine is the orchestrator surface the shell drives.
type Engine interface {
	HandleQuery(ctx context.Context, req types.QueryRequest) (*types.OrganizedResults, error)
	RecordFeedback(ctx context.Context, fb types.Feedback) (Result, error)
	Health(ctx context.Context) types.HealthReport
	StartDiscovery(ctx context.Context) StartResult
	StopDiscovery()
	DiscoveryState() string
}

// Result mirrors the truth extraction outcome without importing the
// pipeline package here.
type Result struct {
	TruthsExtracted int
}

// StartResult mirrors the scheduler's start outcome.
type StartResult struct {
	Started bool
	Message string
}

// Printer renders query results. The CLI supplies its colored renderer.
type Printer func(*types.OrganizedResults)

// Config holds shell configuration.
type Config struct {
	Engine  Engine
	Printer Printer
}

type commandHandler func(args []string) error

// REPL is the interactive shell.
type REPL struct {
	engine   Engine
	printer  Printer
	rl       *readline.Instance
	ctx      context.Context
	commands map[string]commandHandler

	// Session state.
	userID    string
	lastQuery string
}

// New creates a shell.
func New(cfg *Config) (*REPL, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	printer := cfg.Printer
	if printer == nil {
		printer = func(*types.OrganizedResults) {}
	}

	r := &REPL{engine: cfg.Engine, printer: printer, commands: make(map[string]commandHandler)}
	r.registerCommands()
	return r, nil
}

// Run starts the shell loop and blocks until exit.
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("leo> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput dispatches one line. Anything that is not a registered
// command runs as a search query.
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}
	return r.runQuery(line)
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["query"] = r.cmdQuery
	r.commands["user"] = r.cmdUser
	r.commands["rate"] = r.cmdRate
	r.commands["health"] = r.cmdHealth
	r.commands["start"] = r.cmdStart
	r.commands["stop"] = r.cmdStop
	r.commands["status"] = r.cmdStatus
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Leo interactive shell"))
	fmt.Printf("%s\n\n", gray("Type a search query, or 'help' for commands."))
}

func (r *REPL) cmdHelp([]string) error {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("\n%s\n", yellow("Commands:"))
	fmt.Println("  <any text>        run it as a search query")
	fmt.Println("  query <text>      run a search query explicitly")
	fmt.Println("  user <id>         personalize subsequent queries (user - to clear)")
	fmt.Println("  rate <1-5> [note] rate the last query's results")
	fmt.Println("  start             start background discovery")
	fmt.Println("  stop              stop background discovery")
	fmt.Println("  status            show discovery state")
	fmt.Println("  health            check store and LLM reachability")
	fmt.Println("  exit              leave the shell")
	fmt.Println()
	return nil
}

func (r *REPL) cmdQuery(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: query <text>")
	}
	return r.runQuery(strings.Join(args, " "))
}

func (r *REPL) runQuery(text string) error {
	results, err := r.engine.HandleQuery(r.ctx, types.QueryRequest{Text: text, UserID: r.userID})
	if err != nil {
		return err
	}
	r.lastQuery = text
	r.printer(results)
	return nil
}

func (r *REPL) cmdUser(args []string) error {
	gray := color.New(color.FgHiBlack).SprintFunc()
	if len(args) == 0 || args[0] == "-" {
		r.userID = ""
		fmt.Printf("%s\n", gray("personalization off, using global trends"))
		return nil
	}
	r.userID = args[0]
	fmt.Printf("%s\n", gray("queries now personalized for "+r.userID))
	return nil
}

func (r *REPL) cmdRate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rate <1-5> [note]")
	}
	if r.lastQuery == "" {
		return fmt.Errorf("nothing to rate yet, run a query first")
	}

	rating, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("rating must be a number 1-5")
	}

	result, err := r.engine.RecordFeedback(r.ctx, types.Feedback{
		UserID:   r.userID,
		Query:    r.lastQuery,
		Response: strings.Join(args[1:], " "),
		Rating:   rating,
	})
	if err != nil {
		return err
	}
	fmt.Printf("thanks, %d truth(s) extracted\n", result.TruthsExtracted)
	return nil
}

func (r *REPL) cmdHealth([]string) error {
	report := r.engine.Health(r.ctx)
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	check := func(ok bool) string {
		if ok {
			return green("ok")
		}
		return red("unreachable")
	}
	fmt.Printf("vector store: %s, llm: %s\n", check(report.VectorStoreOK), check(report.LLMOk))
	for _, c := range report.Collections {
		if c.Reachable {
			fmt.Printf("  %-20s %d truths\n", c.Collection, c.Count)
		}
	}
	return nil
}

func (r *REPL) cmdStart([]string) error {
	result := r.engine.StartDiscovery(r.ctx)
	fmt.Println(result.Message)
	return nil
}

func (r *REPL) cmdStop([]string) error {
	r.engine.StopDiscovery()
	fmt.Println("discovery stopped")
	return nil
}

func (r *REPL) cmdStatus([]string) error {
	fmt.Printf("discovery: %s\n", r.engine.DiscoveryState())
	return nil
}

func (r *REPL) cmdExit([]string) error {
	fmt.Println("Goodbye!")
	return io.EOF
}
