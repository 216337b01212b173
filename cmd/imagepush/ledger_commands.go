package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"imagepush/internal/config"
	"imagepush/internal/ledger"
	"imagepush/internal/services"
)

func newLedgerCommand() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:         "ledger",
		Short:       "Inspect a sync ledger",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	ledgerCmd.AddCommand(newLedgerStatsCommand())
	ledgerCmd.AddCommand(newLedgerListCommand())

	return ledgerCmd
}

func newLedgerStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <ledger>",
		Short: "Show record and owner counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				stats      ledger.Stats
				ledgerPath string
			)
			err := withExistingLedger(cmd, args[0], func(store *ledger.Store) error {
				var err error
				ledgerPath = store.Path()
				stats, err = store.Stats(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Ledger", ledgerPath},
				{"Schema version", stats.SchemaVersion},
				{"Records", strconv.Itoa(stats.Records)},
				{"Owners", strconv.Itoa(stats.Owners)},
				{"Last recorded", formatRecordedAt(stats.LastRecordedAt)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}, 0))
			return nil
		},
	}
}

func newLedgerListCommand() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <ledger>",
		Short: "List recorded items, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return services.Wrap(services.ErrUsage, "ledger", "list", fmt.Sprintf("--limit must be zero or positive, got %d", limit), nil)
			}
			var entries []ledger.Entry
			err := withExistingLedger(cmd, args[0], func(store *ledger.Store) error {
				var err error
				entries, err = store.List(cmd.Context(), limit)
				return err
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, entriesJSON(entries))
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Ledger is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.LocalID,
					entry.RemoteID,
					entry.Title,
					ownerLabel(entry.Owner),
					strings.Join(entry.Tags, ", "),
					formatRecordedAt(entry.RecordedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Local ID", "Remote ID", "Title", "Owner", "Tags", "Recorded"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				titleColumnWidth,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// withExistingLedger runs fn against a ledger that must already exist. It
// holds the run lock while the store is open, since opening applies pending
// migrations.
func withExistingLedger(cmd *cobra.Command, path string, fn func(*ledger.Store) error) error {
	expanded, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("ledger %s does not exist", expanded)
		}
		return fmt.Errorf("stat ledger: %w", err)
	}

	lock, err := ledger.AcquireRunLock(expanded)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := ledger.Open(cmd.Context(), expanded)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

func ownerLabel(owner ledger.Owner) string {
	switch {
	case owner.Name != "" && owner.Handle != "":
		return fmt.Sprintf("%s (@%s)", owner.Name, owner.Handle)
	case owner.Name != "":
		return owner.Name
	case owner.Handle != "":
		return "@" + owner.Handle
	default:
		return owner.ID
	}
}

func formatRecordedAt(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

type entryJSON struct {
	LocalID    string    `json:"local_id"`
	RemoteID   string    `json:"remote_id"`
	Title      string    `json:"title"`
	OwnerID    string    `json:"owner_id"`
	OwnerName  string    `json:"owner_name,omitempty"`
	OwnerAlias string    `json:"owner_handle,omitempty"`
	URL        string    `json:"url,omitempty"`
	Tags       []string  `json:"tags"`
	RecordedAt time.Time `json:"recorded_at"`
}

func entriesJSON(entries []ledger.Entry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for _, entry := range entries {
		tags := entry.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, entryJSON{
			LocalID:    entry.LocalID,
			RemoteID:   entry.RemoteID,
			Title:      entry.Title,
			OwnerID:    entry.OwnerID,
			OwnerName:  entry.Owner.Name,
			OwnerAlias: entry.Owner.Handle,
			URL:        entry.URL,
			Tags:       tags,
			RecordedAt: entry.RecordedAt,
		})
	}
	return out
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
