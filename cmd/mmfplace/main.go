package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"mmfplace/internal/app"
	"mmfplace/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// global flags
var (
	workDir    string
	configPath string
	outputDir  string
	logFile    string
	verbose    bool
)

// resolvePaths applies the defaults for flags left empty.
func resolvePaths() (defaults map[string]string, err error) {
	defaults, err = app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	if workDir != "" {
		defaults["work_dir"] = workDir
	}
	if configPath != "" {
		defaults["config_path"] = configPath
	}
	return defaults, nil
}

// newApp loads the config and creates an App. The caller must defer a.Close().
// command identifies the CLI command being run (e.g. "place", "history").
func newApp(command string) (*app.App, error) {
	defaults, err := resolvePaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, app.Options{
		WorkDir:  defaults["work_dir"],
		ToolsDir: defaults["tools_dir"],
		LogFile:  logFile,
		Verbose:  verbose,
	}, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "mmfplace",
	Short:        "Organize photos and videos into a year/month tree by their earliest timestamp",
	SilenceUsage: true,
}

// place command
var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Copy media from the input tree into the output tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		test, _ := cmd.Flags().GetBool("test")
		strict, _ := cmd.Flags().GetBool("strict")
		rename, _ := cmd.Flags().GetBool("rename-with-ymd")
		progress, _ := cmd.Flags().GetBool("progress")

		a, err := newApp("place")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		stats, err := a.Place(ctx, app.PlaceOptions{
			Input:          input,
			Output:         outputDir,
			Test:           test,
			Strict:         strict,
			RenameWithDate: rename,
			Progress:       progress,
		})
		if err != nil {
			return fmt.Errorf("place failed: %w", err)
		}

		fmt.Println(app.FormatStats(stats))
		return nil
	},
}

// dupf command
var dupfCmd = &cobra.Command{
	Use:   "dupf",
	Short: "List files with identical content",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")

		a, err := newApp("dupf")
		if err != nil {
			return err
		}
		defer a.Close()

		groups, err := a.Duplicates(input)
		if err != nil {
			return err
		}

		if len(groups) == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}

		for _, g := range groups {
			fmt.Printf("%s\n", g.Hash[:12])
			for _, p := range g.Paths {
				fmt.Printf("  %s\n", p)
			}
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View placement run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Second).String()
			}
			mode := ""
			if r.DryRun {
				mode = "  [test]"
			}
			fmt.Printf("#%d  %s  %-8s  %-8s  %s -> %s%s\n    %s\n",
				r.ID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.Input,
				r.Output,
				mode,
				r.Summary,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := resolvePaths()
		if err != nil {
			return err
		}

		if err := config.Init(defaults["config_path"]); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := resolvePaths()
		if err != nil {
			return err
		}

		cfg, err := config.Load(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("# Configuration from %s\n", defaults["config_path"])
		fmt.Printf("# Work dir:  %s\n", defaults["work_dir"])
		fmt.Printf("# Tools dir: %s\n\n", defaults["tools_dir"])
		return (&config.Manager{}).Write(os.Stdout, cfg)
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Export, import and protect the content index",
}

var indexExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		recipients, _ := cmd.Flags().GetString("recipients")
		passphrase, _ := cmd.Flags().GetBool("passphrase")

		a, err := newApp("index export")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ExportIndex(out, recipients, passphrase); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Index exported to %s\n", out)
		return nil
	},
}

var indexImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the index with a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, _ := cmd.Flags().GetString("in")
		identity, _ := cmd.Flags().GetString("identity")
		passphrase, _ := cmd.Flags().GetBool("passphrase")

		a, err := newApp("index import")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ImportIndex(in, identity, passphrase); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Index imported from %s\n", in)
		return nil
	},
}

var indexKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create a key pair for encrypted snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		recipientPath, _ := cmd.Flags().GetString("recipient-file")
		identityPath, _ := cmd.Flags().GetString("identity-file")

		if err := app.GenerateKeys(recipientPath, identityPath, app.PromptPassphrase(true)); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Recipient: %s\n", recipientPath)
		fmt.Printf("Identity:  %s (passphrase protected)\n", identityPath)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&workDir, "work-dir", "w", "", "Directory holding the index (default $MMFPLACE_HOME or ~/.local/share/mmfplace)")
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default $MMFPLACE_CONFIG or ~/.config/mmfplace.toml)")
	pf.StringVarP(&outputDir, "output", "o", "", "Output directory (default <input>.mmfplace)")
	pf.StringVarP(&logFile, "logfile", "l", "", "Also append logs to this file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")

	// place
	rootCmd.AddCommand(placeCmd)
	placeCmd.Flags().StringP("input", "i", "", "Input directory")
	placeCmd.MarkFlagRequired("input")
	placeCmd.Flags().BoolP("test", "t", false, "Dry run: abort on the first failure and write nothing")
	placeCmd.Flags().Bool("strict", false, "Abort on the first failed file")
	placeCmd.Flags().BoolP("rename-with-ymd", "r", false, "Name placed files YYYY-MM-DD instead of their original name")
	placeCmd.Flags().BoolP("progress", "p", false, "Show a progress bar on a terminal")

	// dupf
	rootCmd.AddCommand(dupfCmd)
	dupfCmd.Flags().StringP("input", "i", "", "Directory to scan")
	dupfCmd.MarkFlagRequired("input")

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	// config subcommands
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// index subcommands
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexExportCmd)
	indexExportCmd.Flags().String("out", "", "Snapshot file to write")
	indexExportCmd.MarkFlagRequired("out")
	indexExportCmd.Flags().String("recipients", "", "Encrypt to the age recipients in this file")
	indexExportCmd.Flags().Bool("passphrase", false, "Encrypt with a passphrase ($MMFPLACE_PASSPHRASE or prompt)")

	indexCmd.AddCommand(indexImportCmd)
	indexImportCmd.Flags().String("in", "", "Snapshot file to read")
	indexImportCmd.MarkFlagRequired("in")
	indexImportCmd.Flags().String("identity", "", "Decrypt with the age identities in this file")
	indexImportCmd.Flags().Bool("passphrase", false, "Decrypt with a passphrase ($MMFPLACE_PASSPHRASE or prompt)")

	indexCmd.AddCommand(indexKeygenCmd)
	indexKeygenCmd.Flags().String("recipient-file", "index.pub", "Where to write the public recipient")
	indexKeygenCmd.Flags().String("identity-file", "index.key", "Where to write the passphrase protected identity")
}
