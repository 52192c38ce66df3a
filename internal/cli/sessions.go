// sessions.go implements "hearnow sessions", "hearnow export" and
// "hearnow delete" for working with stored sessions.
package cli

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/codev612/hearnow/internal/db"
	"github.com/codev612/hearnow/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Long: `List recorded sessions, newest first. --search matches titles and
transcript text case-insensitively.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Print a session as plain text",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session with its transcript and markers",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	searchFlag string
	limitFlag  int
	skipFlag   int
	copyFlag   bool
)

func init() {
	sessionsCmd.Flags().StringVar(&searchFlag, "search", "", "Only sessions whose title or transcript contains this text")
	sessionsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum sessions to list (0 = all)")
	sessionsCmd.Flags().IntVar(&skipFlag, "skip", 0, "Sessions to skip")
	exportCmd.Flags().BoolVar(&copyFlag, "copy", false, "Copy to the clipboard instead of printing")
}

func runSessions(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	page, err := e.store.ListSessions(cmd.Context(), searchFlag, limitFlag, skipFlag)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	for _, s := range page.Items {
		fmt.Fprintf(out, "  %-36s  %-32s  %4d lines  %3d marks  %s\n",
			s.ID, truncate(s.Title, 32), s.BubbleCount, s.MarkerCount, humanize.Time(s.UpdatedAt))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Showing %d-%d of %d\n", skipFlag+1, skipFlag+len(page.Items), page.Total)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	sess, err := e.store.GetSession(cmd.Context(), args[0])
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("no session with id %q; list them with: hearnow sessions", args[0])
	}
	if err != nil {
		return err
	}

	text := session.ExportText(sess)
	if copyFlag {
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Copied %q (%s)\n", sess.DisplayTitle(), humanize.Bytes(uint64(len(text))))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.DeleteSession(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no session with id %q", args[0])
		}
		return err
	}
	e.log.Info().Str("session_id", args[0]).Msg("session deleted")
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
