package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coedit/internal/execution"
	"coedit/internal/watch"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger, _ = zap.NewDevelopment()

var (
	serverFlag string
	tokenFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "coedit",
	Short: "coedit is a command line client for the collaborative editor",
	Long: `coedit talks to a coedit server: it saves file versions as commits,
browses and restores history, runs code, and can watch local files to
commit them on every save.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "server URL (defaults to the logged in server)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer token (defaults to the saved session)")

	var registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			c, err := newClient(false)
			if err != nil {
				return err
			}
			if err := c.Register(cmd.Context(), name, email, password); err != nil {
				return fmt.Errorf("registering: %w", err)
			}
			fmt.Println("Registered", email)
			return nil
		},
	}
	registerCmd.Flags().StringP("name", "n", "", "display name")
	registerCmd.Flags().StringP("email", "e", "", "email address")
	registerCmd.Flags().StringP("password", "p", "", "password")

	var loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			c, err := newClient(false)
			if err != nil {
				return err
			}
			res, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("logging in: %w", err)
			}

			prev, err := loadSession()
			if err != nil {
				return err
			}
			s := &session{Server: prev.server(), Token: res.Token, Email: res.User.Email}
			if err := s.save(); err != nil {
				return fmt.Errorf("saving session: %w", err)
			}
			fmt.Printf("Logged in as %s <%s>\n", res.User.Name, res.User.Email)
			return nil
		},
	}
	loginCmd.Flags().StringP("email", "e", "", "email address")
	loginCmd.Flags().StringP("password", "p", "", "password")

	var logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clearSession(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}

	var saveCmd = &cobra.Command{
		Use:   "save <fileId> <path>",
		Short: "Commit a local file's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			commit, err := c.SaveCommit(cmd.Context(), args[0], string(content))
			if err != nil {
				return fmt.Errorf("saving commit: %w", err)
			}
			color.Green("Committed %s", commit.ID)
			return nil
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show commits you can read, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, _ := cmd.Flags().GetString("file")
			c, err := newClient(true)
			if err != nil {
				return err
			}
			commits, err := c.History(cmd.Context(), fileID)
			if err != nil {
				return fmt.Errorf("getting history: %w", err)
			}
			if len(commits) == 0 {
				fmt.Println("No commits")
				return nil
			}
			id := color.New(color.FgYellow)
			for _, cm := range commits {
				id.Printf("%s ", cm.ID)
				fmt.Printf("%s  %s  %s\n", cm.File, cm.Date.Local().Format(time.DateTime), cm.CommittedBy.Name)
			}
			return nil
		},
	}
	historyCmd.Flags().StringP("file", "f", "", "only commits of this file")

	var logCmd = &cobra.Command{
		Use:   "log <fileId>",
		Short: "Show the commits of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			commits, err := c.CommitsForFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting commits: %w", err)
			}
			id := color.New(color.FgYellow)
			for _, cm := range commits {
				id.Printf("%s ", cm.ID)
				fmt.Printf("%s  %s  %s\n", cm.CreatedAt.Local().Format(time.DateTime), cm.CommittedBy.Name, firstLine(cm.Content))
			}
			return nil
		},
	}

	var catCmd = &cobra.Command{
		Use:   "cat <fileId>",
		Short: "Print a file's live content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			f, err := c.GetFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting file: %w", err)
			}
			fmt.Print(f.Content)
			return nil
		},
	}

	var revertCmd = &cobra.Command{
		Use:   "revert <commitId>",
		Short: "Delete a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			if err := c.Revert(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("reverting commit: %w", err)
			}
			fmt.Println("Commit deleted")
			return nil
		},
	}

	var restoreCmd = &cobra.Command{
		Use:   "restore <fileId> <commitId>",
		Short: "Make an old commit's content current again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			commit, err := c.Restore(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("restoring commit: %w", err)
			}
			color.Green("Restored as %s", commit.ID)
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff <fromCommit> <toCommit>",
		Short: "Show the changes between two commits of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			view, err := c.Diff(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("diffing commits: %w", err)
			}
			if view.Diff == nil || len(view.Diff.Hunks) == 0 {
				fmt.Println("No changes")
				return nil
			}
			printColoredDiff(view.Unified)
			fmt.Printf("%d additions, %d deletions\n", view.Diff.Stats.Additions, view.Diff.Stats.Deletions)
			return nil
		},
	}

	var runCmd = &cobra.Command{
		Use:   "run <path>",
		Short: "Run a local source file on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, _ := cmd.Flags().GetInt("lang")
			stdin, _ := cmd.Flags().GetString("stdin")
			fileID, _ := cmd.Flags().GetString("file")

			if lang == 0 {
				id, ok := languageFor(args[0])
				if !ok {
					return fmt.Errorf("cannot tell the language of %s, pass --lang", args[0])
				}
				lang = id
			}
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}

			c, err := newClient(true)
			if err != nil {
				return err
			}
			logger.Debug("running", zap.String("language", execution.LanguageName(lang)))
			res, err := c.Run(cmd.Context(), execution.Request{Code: string(code), LanguageID: lang, Stdin: stdin, FileID: fileID})
			if err != nil {
				return fmt.Errorf("running code: %w", err)
			}
			if res.Stdout != nil {
				fmt.Print(*res.Stdout)
				return nil
			}
			color.Red("%s", res.Status)
			fmt.Fprint(os.Stderr, res.Error)
			return fmt.Errorf("run failed")
		},
	}
	runCmd.Flags().IntP("lang", "l", 0, "language id (guessed from the extension when omitted)")
	runCmd.Flags().StringP("stdin", "i", "", "standard input for the program")
	runCmd.Flags().StringP("file", "f", "", "server file id the code belongs to")

	var watchCmd = &cobra.Command{
		Use:   "watch <fileId=path>...",
		Short: "Commit local files every time they are saved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debounce, _ := cmd.Flags().GetDuration("debounce")

			bindings := make([]watch.Binding, 0, len(args))
			for _, arg := range args {
				id, path, err := parseBinding(arg)
				if err != nil {
					return err
				}
				bindings = append(bindings, watch.Binding{Path: path, FileID: id})
			}

			c, err := newClient(true)
			if err != nil {
				return err
			}
			w, err := watch.New(c, bindings, debounce, logger)
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Printf("Watching %d file(s), press Ctrl-C to stop\n", len(bindings))
			return w.Run(ctx)
		},
	}
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a change is committed")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 60 {
		return line[:57] + "..."
	}
	return line
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
