package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gbtim/internal/app"
	"gbtim/internal/config"
	"gbtim/internal/gbtim"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "index", "verify").
func newApp(operation, parameters string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "gbtim",
	Short: "GBT intensity mapping metadata indexer",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init HOST",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", cfg.HostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:  %s\n", cfg.HostID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		for _, h := range cfg.Hosts {
			fmt.Printf("Host:     %s (%s)\n", h.Name, h.Type)
		}
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index PATH...",
	Short: "Index instrument files into the metadata hierarchy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		a, err := newApp("index", strings.Join(args, " "))
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Index(args, full)
		if err != nil {
			return err
		}

		indexed, failed := 0, 0
		for _, r := range results {
			switch {
			case r.Err == nil:
				indexed++
				fmt.Printf("ok       %s  %s\n", r.Identity, r.Path)
			case app.IsContentMismatch(r.Err):
				indexed++
				fmt.Printf("CORRUPT  %s  %s\n", r.Identity, r.Path)
			default:
				failed++
				fmt.Printf("error    %s: %v\n", r.Path, r.Err)
			}
		}
		fmt.Printf("Indexed %d file(s), %d failure(s)\n", indexed, failed)

		if failed > 0 {
			return fmt.Errorf("%d file(s) failed to index", failed)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [PATH]",
	Short: "Re-hash recorded file copies and flag corruption",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("either a PATH or --all is required")
		}

		a, err := newApp("verify", strings.Join(args, " "))
		if err != nil {
			return err
		}
		defer a.Close()

		var results []*gbtim.CopyStatus
		if all {
			results, err = a.VerifyAll()
		} else {
			results, err = a.Verify(args[0])
		}
		if err != nil {
			return err
		}

		corrupt := 0
		for _, st := range results {
			if st.Err == nil {
				fmt.Printf("ok       %s:%s\n", st.Copy.Host, st.Copy.Path)
			} else {
				corrupt++
				fmt.Printf("CORRUPT  %s:%s: %v\n", st.Copy.Host, st.Copy.Path, st.Err)
			}
		}
		fmt.Printf("Checked %d cop(ies), %d problem(s)\n", len(results), corrupt)
		if corrupt > 0 {
			return fmt.Errorf("%d cop(ies) failed verification", corrupt)
		}
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls [ALLOCATION[.SESSION]]",
	Short: "List the indexed hierarchy",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := ""
		if len(args) == 1 {
			filter = args[0]
		}

		a, err := newApp("ls", filter)
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.Tree(filter)
		if err != nil {
			return err
		}

		if len(tree) == 0 {
			fmt.Println("Index is empty.")
			return nil
		}

		for _, alloc := range tree {
			fmt.Println(alloc.Name)
			for _, sess := range alloc.Sessions {
				fmt.Printf("  %s\n", sess.Identity)
				for _, scan := range sess.Scans {
					fmt.Printf("    %s  %-12s  %d file(s)\n", scan.Identity, scan.Mode, scan.Files)
				}
			}
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View index operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history", "")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No index operations recorded.")
			return nil
		}

		for _, op := range ops {
			started := time.Unix(int64(op.StartedAt), 0).UTC()
			duration := ""
			if op.FinishedAt != nil {
				d := time.Duration((*op.FinishedAt - op.StartedAt) * float64(time.Second))
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				started.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

// scanset command
var scansetCmd = &cobra.Command{
	Use:   "scanset",
	Short: "Manage scan sets",
}

var scansetAddCmd = &cobra.Command{
	Use:   "add SESSION KIND SCAN...",
	Short: "Group scans of a session into a new scan set",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, kind := args[0], args[1]
		var scans []int
		for _, s := range args[2:] {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("invalid scan number %q: %w", s, err)
			}
			scans = append(scans, n)
		}

		a, err := newApp("scanset", strings.Join(args, " "))
		if err != nil {
			return err
		}
		defer a.Close()

		set, err := a.CreateScanSet(session, kind, scans)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s scan set %s with %d scan(s)\n", set.Kind, set.ID, len(scans))
		return nil
	},
}

// target command
var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage observation targets",
}

var targetSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Set sky coordinates for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ra, _ := cmd.Flags().GetFloat64("ra")
		dec, _ := cmd.Flags().GetFloat64("dec")
		if !cmd.Flags().Changed("ra") || !cmd.Flags().Changed("dec") {
			return fmt.Errorf("both --ra and --dec are required")
		}

		a, err := newApp("target", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetTargetCoordinates(args[0], ra, dec); err != nil {
			return err
		}
		fmt.Printf("Set %s to ra=%g dec=%g\n", args[0], ra, dec)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	indexCmd.Flags().Bool("full", false, "Read the subintegration table (timing and pointing) as well")
	verifyCmd.Flags().Bool("all", false, "Verify every indexed file")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	targetSetCmd.Flags().Float64("ra", 0, "Right ascension in degrees")
	targetSetCmd.Flags().Float64("dec", 0, "Declination in degrees")

	scansetCmd.AddCommand(scansetAddCmd)
	targetCmd.AddCommand(targetSetCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scansetCmd)
	rootCmd.AddCommand(targetCmd)
}
