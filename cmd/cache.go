package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the build cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache entries",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show an entry and its last build record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cache entries",
	Long: `Remove every Ready entry. Entries that are being built are kept unless
--force is given. --force also removes staging directories left by crashed
builds, so only use it while no server is building.`,
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Remove specific cache entries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheRemove,
}

var cacheUnlockCmd = &cobra.Command{
	Use:   "unlock <key>",
	Short: "Remove the lock marker left by a crashed build",
	Long: `Lock markers never expire. If the process building an entry died, the
entry stays locked and requests for it are rejected until the marker is removed.
Unlocking keeps whatever the build had written; pass nocache on the next request
to rebuild it.`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheUnlock,
}

func init() {
	cacheClearCmd.Flags().Bool("force", false, "Also remove entries that are being built")
	cacheRemoveCmd.Flags().Bool("force", false, "Remove entries even if they are being built")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheUnlockCmd)
}

// openCache opens the on-disk store for maintenance. Entries of the memory
// backend live in the same layout, so the dir store can read them.
func openCache(cmd *cobra.Command) (*cache.DirStore, *cache.Index, *config.Config, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := cache.NewDirStore(cfg.CacheDir)
	if err != nil {
		return nil, nil, nil, err
	}

	return store, openIndexOptional(cmd.Context(), cfg, log), cfg, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, idx, cfg, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeIndex(idx)

	stats, err := cache.CollectStats(store, idx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Cache directory:\t%s\n", cfg.CacheDir)
	fmt.Fprintf(w, "Entries:\t%d\n", stats.Entries)
	fmt.Fprintf(w, "Building:\t%d\n", stats.Building)
	fmt.Fprintf(w, "Total size:\t%s\n", formatBytes(stats.TotalSize))

	if idx != nil {
		fmt.Fprintf(w, "Build records:\t%d\n", stats.Records)
		fmt.Fprintf(w, "Failed builds:\t%d\n", stats.Failures)
	}

	return w.Flush()
}

func runCacheList(cmd *cobra.Command, args []string) error {
	store, idx, _, err := openCache(cmd)
	if err != nil {
		return err
	}
	closeIndex(idx)

	entries, err := store.Entries()
	if err != nil {
		return err
	}

	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATE\tSIZE\tAGE")

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key, e.State, formatBytes(e.Size), now.Sub(e.ModTime).Round(time.Second))
	}

	return w.Flush()
}

// entryReport is what `cache show` prints
type entryReport struct {
	Key     string          `json:"key"`
	State   string          `json:"state"`
	Outputs []string        `json:"outputs,omitempty"`
	Size    int64           `json:"size"`
	ModTime time.Time       `json:"modified"`
	Lock    *cache.LockInfo `json:"lock,omitempty"`
	Record  *cache.Record   `json:"last_build,omitempty"`
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	store, idx, _, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeIndex(idx)

	key := args[0]

	report := entryReport{Key: key, State: cache.Absent.String()}

	entry, err := store.Entry(key)
	if err != nil {
		return err
	}

	if entry != nil {
		report.State = entry.State.String()
		report.Outputs = entry.Outputs
		report.Size = entry.Size
		report.ModTime = entry.ModTime
		report.Lock = entry.Lock
	}

	if idx != nil {
		if report.Record, err = idx.Get(key); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	store, idx, _, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeIndex(idx)

	force, _ := cmd.Flags().GetBool("force")

	removed, err := store.Clear(force)
	if err != nil {
		return err
	}

	if idx != nil {
		for _, key := range removed {
			if err := idx.Delete(key); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", len(removed))

	if !force {
		return nil
	}

	swept, err := store.Sweep()
	if err != nil {
		return err
	}

	if len(swept) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d leftover build directories\n", len(swept))
	}

	return nil
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	store, idx, _, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeIndex(idx)

	force, _ := cmd.Flags().GetBool("force")

	for _, key := range args {
		if err := store.Remove(key, force); err != nil {
			return err
		}

		if idx != nil {
			if err := idx.Delete(key); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key)
	}

	return nil
}

func runCacheUnlock(cmd *cobra.Command, args []string) error {
	store, idx, _, err := openCache(cmd)
	if err != nil {
		return err
	}
	closeIndex(idx)

	key := args[0]

	lock, err := store.LockInfo(key)
	if err != nil {
		return err
	}

	if err := store.Unlock(key); err != nil {
		return err
	}

	if lock != nil && lock.BuildID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s (build %s, pid %d on %s, started %s)\n",
			key, lock.BuildID, lock.PID, lock.Host, lock.StartedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", key)
	}

	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
