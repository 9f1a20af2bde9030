// Command ledgerctl inspects and maintains the persisted quota ledger using
// the same configuration as the API server. Stop the server before running
// reset against the file driver; the server keeps its own copy in memory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/aidqr/aidqr/internal/config"
	"github.com/aidqr/aidqr/internal/quota"
	"github.com/aidqr/aidqr/internal/storage"
)

// CLI defines the command-line interface.
type CLI struct {
	List  ListCmd  `cmd:"" help:"List every user record."`
	Show  ShowCmd  `cmd:"" help:"Print one user record as JSON."`
	Reset ResetCmd `cmd:"" help:"Apply the calendar-day usage reset to the stored ledger."`

	Env      string `help:"Path to the dotenv file." default:".env" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn"`
}

// session is what every command needs: a loaded ledger and its config.
type session struct {
	cfg     *config.Config
	backend *storage.Backend
	ledger  *quota.Ledger
}

func (cli *CLI) open(ctx context.Context) (*session, error) {
	cfg, err := config.LoadFile(cli.Env)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	ledger := quota.NewLedger(backend)
	if err := ledger.Load(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return &session{cfg: cfg, backend: backend, ledger: ledger}, nil
}

// ListCmd prints a table of all records.
type ListCmd struct{}

func (c *ListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	s, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer s.backend.Close()

	table := s.ledger.Snapshot()
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tWATER\tMEALS\tLAST RESET\tACTIVE KEYS")
	for _, id := range ids {
		rec := table[id]
		active := 0
		for _, k := range quota.Kinds {
			if _, _, ok := rec.ActiveKey(k); ok {
				active++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d/%d\t%s\t%d\n",
			id, rec.Disadvantaged,
			rec.Used.Water, rec.DailyLimit.Water,
			rec.Used.Meals, rec.DailyLimit.Meals,
			rec.LastReset.Format(time.RFC3339), active)
	}
	return w.Flush()
}

// ShowCmd prints one record.
type ShowCmd struct {
	ID string `arg:"" help:"User id."`
}

func (c *ShowCmd) Run(cli *CLI) error {
	ctx := context.Background()
	s, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer s.backend.Close()

	rec, ok := s.ledger.Lookup(c.ID)
	if !ok {
		return fmt.Errorf("%w: %s", quota.ErrNotFound, c.ID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// ResetCmd applies the daily reset to the stored ledger and saves it.
type ResetCmd struct {
	DryRun bool `help:"Report how many records would be reset without saving."`
}

func (c *ResetCmd) Run(cli *CLI) error {
	ctx := context.Background()
	s, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer s.backend.Close()

	loc, err := s.cfg.Ledger.Location()
	if err != nil {
		return err
	}
	n := s.ledger.ResetDaily(time.Now().In(loc))
	if c.DryRun {
		fmt.Printf("%d record(s) would be reset\n", n)
		return nil
	}

	if err := s.ledger.Persist(ctx); err != nil {
		return err
	}
	fmt.Printf("%d record(s) reset\n", n)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("ledgerctl"),
		kong.Description("Inspect and maintain the daily quota ledger."),
		kong.UsageOnError(),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
