package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tasktime/ledger"
	"tasktime/storage"
	"tasktime/tasks"
)

const (
	seedMinSeconds = 60
	seedMaxSeconds = 24000
)

var (
	seedDBPath     string
	seedOwnerID    int64
	seedTaskCount  int
	seedEntryCount int
	seedBatchSize  int
	seedWindowDays int
	seedRandSeed   int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with generated tasks and time entries",
	Long: `Bulk-insert generated tasks and time entries for load testing.

All rows belong to one user (--owner, default: the first user). Entries get between
1 and 400 minutes each and a creation time inside the trailing window, so "report top"
and the top-last-month endpoint have data to rank. About a quarter of the entries are
stopped timer rows (at most one per task); the rest are manual entries.

Rows are written in transactions of --batch rows.`,
	Example: `
  # Same volume as a production-sized load test
  tasktime seed

  # Small reproducible dataset
  tasktime seed --tasks 100 --entries 500 --seed 42
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(seedDBPath, func(a *app) error {
			opts := seedOptions{
				OwnerID:    seedOwnerID,
				Tasks:      seedTaskCount,
				Entries:    seedEntryCount,
				BatchSize:  seedBatchSize,
				WindowDays: seedWindowDays,
				RandSeed:   seedRandSeed,
				Now:        a.clock.Now(),
			}
			_, err := runSeed(context.Background(), a.store, opts, os.Stdout)
			return err
		})
	},
}

type seedOptions struct {
	OwnerID    int64
	Tasks      int
	Entries    int
	BatchSize  int
	WindowDays int
	RandSeed   int64
	Now        time.Time
}

type seedResult struct {
	Owner   storage.User
	Tasks   int
	Entries int
}

func runSeed(ctx context.Context, store *storage.SQLiteStore, opts seedOptions, out io.Writer) (seedResult, error) {
	if opts.Tasks <= 0 {
		return seedResult{}, fmt.Errorf("--tasks must be > 0")
	}
	if opts.Entries < 0 {
		return seedResult{}, fmt.Errorf("--entries must be >= 0")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2000
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.RandSeed == 0 {
		opts.RandSeed = time.Now().UnixNano()
	}

	owner, err := seedOwner(ctx, store, opts.OwnerID)
	if err != nil {
		return seedResult{}, err
	}

	rng := rand.New(rand.NewSource(opts.RandSeed))
	result := seedResult{Owner: owner}

	taskIDs := make([]int64, 0, opts.Tasks)
	for _, batch := range chunk(buildSeedTasks(rng, owner.ID, opts.Tasks, opts.Now), opts.BatchSize) {
		ids, err := store.InsertTasks(ctx, batch)
		if err != nil {
			return result, err
		}
		taskIDs = append(taskIDs, ids...)
		result.Tasks += len(ids)
	}

	entries := buildSeedEntries(rng, owner.ID, taskIDs, opts.Entries, opts.Now, time.Duration(opts.WindowDays)*24*time.Hour)
	for _, batch := range chunk(entries, opts.BatchSize) {
		inserted, err := store.InsertEntries(ctx, batch)
		result.Entries += inserted
		if err != nil {
			return result, err
		}
	}

	if out != nil {
		fmt.Fprintf(out, "Seeded %s tasks and %s time entries for user %d (%s)\n",
			humanize.Comma(int64(result.Tasks)), humanize.Comma(int64(result.Entries)), owner.ID, owner.Email)
	}
	return result, nil
}

func seedOwner(ctx context.Context, store *storage.SQLiteStore, ownerID int64) (storage.User, error) {
	var (
		owner storage.User
		err   error
	)
	if ownerID > 0 {
		owner, err = store.GetUser(ctx, ownerID)
	} else {
		owner, err = store.FirstUser(ctx)
	}
	if errors.Is(err, ledger.ErrEntityNotFound) {
		return storage.User{}, fmt.Errorf("seed needs an existing user, create one with \"tasktime user add\": %w", err)
	}
	return owner, err
}

func buildSeedTasks(rng *rand.Rand, ownerID int64, count int, now time.Time) []tasks.Task {
	list := make([]tasks.Task, 0, count)
	for i := 0; i < count; i++ {
		list = append(list, tasks.Task{
			Title:       seedSentence(rng, 4, 9),
			Description: seedSentence(rng, 12, 30),
			Status:      tasks.StatusOpen,
			OwnerID:     ownerID,
			CreatedAt:   now,
		})
	}
	return list
}

// buildSeedEntries spreads entries over the window ending at now. Each row finishes
// before now, and each task gets at most one timer row.
func buildSeedEntries(rng *rand.Rand, ownerID int64, taskIDs []int64, count int, now time.Time, window time.Duration) []ledger.Entry {
	if len(taskIDs) == 0 || count == 0 {
		return nil
	}

	windowSeconds := int64(window / time.Second)
	hasTimer := make(map[int64]bool, len(taskIDs))
	entries := make([]ledger.Entry, 0, count)
	for i := 0; i < count; i++ {
		taskID := taskIDs[rng.Intn(len(taskIDs))]
		seconds := seedMinSeconds + rng.Int63n(seedMaxSeconds-seedMinSeconds+1)

		offset := seconds
		if slack := windowSeconds - seconds; slack > 0 {
			offset += rng.Int63n(slack)
		}
		started := now.Add(-time.Duration(offset) * time.Second)

		entry := ledger.Entry{
			TaskID:             taskID,
			OwnerID:            ownerID,
			Kind:               ledger.KindManual,
			StartedAt:          started,
			AccumulatedSeconds: seconds,
			CreatedAt:          started,
		}
		if !hasTimer[taskID] && rng.Intn(4) == 0 {
			hasTimer[taskID] = true
			stopped := started.Add(time.Duration(seconds) * time.Second)
			entry.Kind = ledger.KindTimer
			entry.StoppedAt = &stopped
		}
		entries = append(entries, entry)
	}
	return entries
}

var seedWords = strings.Fields(`
	lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor
	incididunt ut labore et dolore magna aliqua enim ad minim veniam quis nostrud
	exercitation ullamco laboris nisi aliquip ex ea commodo consequat duis aute irure
	in reprehenderit voluptate velit esse cillum fugiat nulla pariatur excepteur sint
	occaecat cupidatat non proident sunt culpa qui officia deserunt mollit anim id est`)

func seedSentence(rng *rand.Rand, minWords, maxWords int) string {
	n := minWords + rng.Intn(maxWords-minWords+1)
	words := make([]string, n)
	for i := range words {
		words[i] = seedWords[rng.Intn(len(seedWords))]
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ") + "."
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	seedCmd.Flags().Int64Var(&seedOwnerID, "owner", 0, "Owner user ID (default: first user)")
	seedCmd.Flags().IntVar(&seedTaskCount, "tasks", 25000, "Number of tasks to create")
	seedCmd.Flags().IntVar(&seedEntryCount, "entries", 50000, "Number of time entries to create")
	seedCmd.Flags().IntVar(&seedBatchSize, "batch", 2000, "Rows per transaction")
	seedCmd.Flags().IntVar(&seedWindowDays, "window-days", 30, "Spread entries over this many trailing days")
	seedCmd.Flags().Int64Var(&seedRandSeed, "seed", 0, "Random seed (default: current time)")
}
