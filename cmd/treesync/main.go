package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"treesync/client"
	"treesync/internal/app"
	"treesync/internal/config"
	"treesync/internal/diff"
	"treesync/internal/logging"
	"treesync/internal/watch"
	"treesync/internal/workspace"
)

var (
	configPath string
	serverURL  string
	branchFlag string

	logger = zap.NewNop()
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "treesync",
	Short: "Treesync keeps a remote file tree in line with local content",
	Long: `Treesync compares desired file contents with a remote repository tree and
commits only what differs, in a single commit per operation. It can also
parse unified diffs and compare remote revisions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		l, err := logging.NewLogger(cfg.LogLevel, cfg.Development())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l.Logger
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigPath(), "Config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Use a running treesync server instead of opening the remote directly")
	rootCmd.PersistentFlags().StringVarP(&branchFlag, "branch", "b", "", "Target branch (defaults to the configured default branch)")

	var branchesCmd = &cobra.Command{
		Use:   "branches",
		Short: "List remote branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, b backend) error {
				names, def, err := b.Branches(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					marker := " "
					if n == def {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, n)
				}
				return nil
			})
		},
	}

	var branchCmd = &cobra.Command{
		Use:   "branch [name]",
		Short: "Create a branch on the remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL != "" {
				return fmt.Errorf("creating branches is not available through a server")
			}
			from, _ := cmd.Flags().GetString("from")
			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if from == "" {
				from = a.Session.DefaultBranch()
			}
			if err := a.CreateBranch(ctx, args[0], from); err != nil {
				return fmt.Errorf("creating branch: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s from %s\n", args[0], from)
			return nil
		},
	}

	var lsCmd = &cobra.Command{
		Use:   "ls [folder]",
		Short: "List every file under a remote folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := "/"
			if len(args) == 1 {
				folder = args[0]
			}
			return withBackend(cmd, func(ctx context.Context, b backend) error {
				files, err := b.ListFiles(ctx, folder, branchFlag)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			})
		},
	}

	var catCmd = &cobra.Command{
		Use:   "cat [path]",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, b backend) error {
				content, err := b.GetFile(ctx, args[0], branchFlag)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			})
		},
	}

	var pushCmd = &cobra.Command{
		Use:   "push [dir]",
		Short: "Commit the files of a local directory that differ from the remote",
		Long: `Push collects the text files under dir, compares them with the remote
branch and commits creates and updates for those that differ. Files missing
locally are left alone on the remote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			message, _ := cmd.Flags().GetString("message")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			watchDir, _ := cmd.Flags().GetBool("watch")

			ws, err := workspace.NewLocalWorkspace(args[0], prefix, logger)
			if err != nil {
				return err
			}

			return withBackend(cmd, func(ctx context.Context, b backend) error {
				push := func(ctx context.Context) error {
					files, err := ws.Collect()
					if err != nil {
						return err
					}
					if dryRun {
						actions, err := b.Plan(ctx, files, branchFlag)
						if err != nil {
							return err
						}
						printActions(cmd.OutOrStdout(), actions)
						return nil
					}
					result, err := b.Commit(ctx, files, message, branchFlag)
					if err != nil {
						return err
					}
					printResult(cmd.OutOrStdout(), result)
					return nil
				}

				if err := push(ctx); err != nil {
					return err
				}
				if !watchDir {
					return nil
				}

				w, err := watch.New(args[0], time.Duration(cfg.Sync.WatchDebounceMillis)*time.Millisecond, logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes\n", args[0])
				err = w.Run(ctx, func(ctx context.Context, changed []string) error {
					logger.Info("local changes", zap.Strings("paths", changed))
					return push(ctx)
				})
				if ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}

	var rmCmd = &cobra.Command{
		Use:   "rm [path]",
		Short: "Delete a remote file, or every file in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, _ := cmd.Flags().GetBool("folder")
			message, _ := cmd.Flags().GetString("message")
			return withBackend(cmd, func(ctx context.Context, b backend) error {
				del := b.DeleteFile
				if folder {
					del = b.DeleteFolder
				}
				result, err := del(ctx, args[0], message, branchFlag)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [from to]",
		Short: "Show the changes between two remote revisions, or of a patch file",
		Args: func(cmd *cobra.Command, args []string) error {
			if patch, _ := cmd.Flags().GetString("patch"); patch != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, _ := cmd.Flags().GetString("patch")
			asJSON, _ := cmd.Flags().GetBool("json")

			var records []diff.Record
			if patch != "" {
				var err error
				if records, err = readPatch(cmd.InOrStdin(), patch); err != nil {
					return err
				}
			} else {
				err := withBackend(cmd, func(ctx context.Context, b backend) error {
					var err error
					records, err = b.Compare(ctx, args[0], args[1])
					return err
				})
				if err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}

	// Add flags
	branchCmd.Flags().String("from", "", "Branch to start from (defaults to the default branch)")

	pushCmd.Flags().StringP("prefix", "p", "", "Remote folder the directory maps to")
	pushCmd.Flags().StringP("message", "m", "", "Commit message")
	pushCmd.Flags().Bool("dry-run", false, "Show the planned actions without committing")
	pushCmd.Flags().BoolP("watch", "w", false, "Keep pushing as local files change")

	rmCmd.Flags().Bool("folder", false, "Delete every file under the folder")
	rmCmd.Flags().StringP("message", "m", "", "Commit message")

	diffCmd.Flags().String("patch", "", "Parse a unified diff file instead (- for stdin)")
	diffCmd.Flags().Bool("json", false, "Print records as JSON")

	// Add commands to root
	rootCmd.AddCommand(branchesCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(diffCmd)
}

// withBackend runs fn against a server client when --server is set, and
// against a freshly opened remote otherwise.
func withBackend(cmd *cobra.Command, fn func(context.Context, backend) error) error {
	ctx := cmd.Context()
	if serverURL != "" {
		return fn(ctx, remoteBackend{client.New(serverURL)})
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening %s remote: %w", cfg.Remote.Kind, err)
	}
	defer a.Close()
	return fn(ctx, localBackend{a.Session})
}

func readPatch(stdin io.Reader, name string) ([]diff.Record, error) {
	if name == "-" {
		return diff.ParseReader(stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening patch: %w", err)
	}
	defer f.Close()
	return diff.ParseReader(f)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
