// Package shell provides the interactive console for a running market.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"

	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Controller is what the shell drives: the in-process bus or a remote API.
type Controller interface {
	Status(ctx context.Context) (telemetry.Status, error)
	Pause(ctx context.Context) (telemetry.Status, error)
	Resume(ctx context.Context) (telemetry.Status, error)
	Stop(ctx context.Context) (telemetry.Status, error)
	Inspect(ctx context.Context, id uint64) (telemetry.AgentView, error)
}

// Historian is implemented by controllers that can list recorded steps.
type Historian interface {
	History(ctx context.Context, limit int) ([]telemetry.StepStats, error)
}

// Config holds shell configuration.
type Config struct {
	HistoryFile string
	Prompt      string
}

// Shell is the read-eval-print loop.
type Shell struct {
	ctl Controller
	rl  *readline.Instance
	out io.Writer
}

var commands = []string{"status", "pause", "resume", "stop", "inspect", "history", "help", "quit"}

// New creates a shell on the terminal.
func New(ctl Controller, cfg Config) (*Shell, error) {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "\033[36mmedtrust>\033[0m "
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, c := range commands {
		items = append(items, readline.PcItem(c))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return nil, err
	}
	return &Shell{ctl: ctl, rl: rl, out: rl.Stdout()}, nil
}

// Run reads commands until quit, EOF, or the run ends.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	fmt.Fprintln(s.out, "Commands: status, pause, resume, stop, inspect <id>, history [n], help, quit")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			if errors.Is(err, telemetry.ErrClosed) {
				fmt.Fprintln(s.out, "The simulation has stopped.")
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

var errQuit = errors.New("quit")

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch cmd := strings.TrimPrefix(parts[0], "/"); cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "h", "?":
		s.printHelp()

	case "status", "s":
		st, err := s.ctl.Status(ctx)
		if err != nil {
			return err
		}
		s.printStatus(st)

	case "pause":
		st, err := s.ctl.Pause(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Paused at step %s.\n", humanize.Comma(int64(st.Step)))

	case "resume":
		st, err := s.ctl.Resume(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Resumed at step %s.\n", humanize.Comma(int64(st.Step)))

	case "stop":
		st, err := s.ctl.Stop(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Stopping after step %s.\n", humanize.Comma(int64(st.Step)))
		return errQuit

	case "inspect", "i":
		if len(parts) != 2 {
			return errors.New("usage: inspect <agent id>")
		}
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad agent id %q", parts[1])
		}
		v, err := s.ctl.Inspect(ctx, id)
		if err != nil {
			return err
		}
		s.printAgent(v)

	case "history":
		h, ok := s.ctl.(Historian)
		if !ok {
			return errors.New("history is not available on this connection")
		}
		limit := 10
		if len(parts) > 1 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n < 1 {
				return fmt.Errorf("bad step count %q", parts[1])
			}
			limit = n
		}
		steps, err := h.History(ctx, limit)
		if err != nil {
			return err
		}
		s.printHistory(steps)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try help)\n", cmd)
	}
	return nil
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `  status          run summary
  pause / resume  hold or continue stepping
  stop            end the run
  inspect <id>    one agent's stock and ledger
  history [n]     last n recorded steps
  quit            leave the shell (the run continues)
`)
}

func (s *Shell) printStatus(st telemetry.Status) {
	state := "running"
	if st.Paused {
		state = "paused"
	}
	fmt.Fprintf(s.out, "Run %s (seed %d), %s at step %s\n", st.RunID, st.Seed, state, humanize.Comma(int64(st.Step)))
	fmt.Fprintf(s.out, "  patients %s  sellers %d  suppliers %d\n",
		humanize.Comma(int64(st.Patients)), st.Sellers, st.Suppliers)
	fmt.Fprintf(s.out, "  total sales %s  mean quality %.3f  dropped frames %d\n",
		humanize.Comma(int64(st.TotalSales)), st.MeanQuality, st.Dropped)
}

func (s *Shell) printAgent(v telemetry.AgentView) {
	fmt.Fprintf(s.out, "%s %d at (%.2f, %.2f), N=%d, min purchase %d\n",
		v.Role, v.ID, v.Position.X, v.Position.Y, v.Trials, v.MinPurchase)
	if st := v.Stock; st != nil {
		fmt.Fprintf(s.out, "  cash %.2f  supply %d  price %.2f  quality %.3f  strategy %.3f  shortfalls %d\n",
			st.Cash, st.Supply, st.Price, st.Quality, st.Strategy, st.Shortfalls)
	}
	if len(v.Experience) == 0 {
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  vendor\tsuccesses\ttrials\tratio\tdistance\t")
	for _, e := range v.Experience {
		ratio := 0.0
		if e.Trials > 0 {
			ratio = float64(e.Successes) / float64(e.Trials)
		}
		gone := ""
		if !e.Active {
			gone = "retired"
		}
		fmt.Fprintf(tw, "  %d\t%d\t%d\t%.2f\t%.2f\t%s\n", e.Vendor, e.Successes, e.Trials, ratio, e.Distance, gone)
	}
	tw.Flush()
}

func (s *Shell) printHistory(steps []telemetry.StepStats) {
	if len(steps) == 0 {
		fmt.Fprintln(s.out, "No steps recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "step\tsales\tquality\tstock-outs\tsellers\tsuppliers\t")
	for _, st := range steps {
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%d\t%d\t%d\t\n",
			humanize.Comma(int64(st.Step)), st.Sales, st.MeanQuality, st.StockOuts, st.Sellers, st.Suppliers)
	}
	tw.Flush()
}
