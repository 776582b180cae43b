package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"ragvault/internal/domain"
)

var (
	backupJSON     bool
	backupKeepDays int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage vector store backups",
	Long: `Create, list, restore and expire timestamped backups of the vector store.

Examples:
  ragvault backup create
  ragvault backup list
  ragvault backup restore 20250601_120000
  ragvault backup sweep --keep-days 14`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the store into a new backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(GetConfig(), Logger())
		if err != nil {
			return err
		}
		entry, err := a.backups.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}
		fmt.Printf("Created backup %s (%d bytes, %d vectors)\n", entry.Timestamp, entry.SizeBytes, a.store.Count())
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(GetConfig(), Logger())
		if err != nil {
			return err
		}
		entries, err := a.backups.ListBackups()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}

		if backupJSON {
			if entries == nil {
				entries = []domain.BackupEntry{}
			}
			output, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(output))
			return nil
		}
		if len(entries) == 0 {
			fmt.Printf("No backups in %s\n", a.backups.Dir())
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tCREATED\tSIZE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\n", e.Timestamp, e.CreatedAt.Format(time.RFC3339), e.SizeBytes)
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <timestamp>",
	Short: "Replace the store with a backup",
	Long: `Replace the live store with the backup taken at <timestamp>. The current
store is snapshotted first, so a restore can itself be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(GetConfig(), Logger())
		if err != nil {
			return err
		}
		if err := a.backups.Restore(args[0]); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored backup %s (%d vectors)\n", args[0], a.store.Count())
		return nil
	},
}

var backupSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete backups older than the retention horizon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		a, err := openApp(cfg, Logger())
		if err != nil {
			return err
		}
		keep := cfg.Backup.KeepDays
		if cmd.Flags().Changed("keep-days") {
			keep = backupKeepDays
		}
		removed, err := a.backups.RetentionSweep(keep)
		fmt.Printf("Deleted %d backups older than %d days\n", removed, keep)
		if err != nil {
			return fmt.Errorf("sweep incomplete: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupSweepCmd)
	backupListCmd.Flags().BoolVar(&backupJSON, "json", false, "output as JSON")
	backupSweepCmd.Flags().IntVar(&backupKeepDays, "keep-days", 0, "retention horizon in days (default from config)")
}
