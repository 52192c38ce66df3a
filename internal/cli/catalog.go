// catalog.go implements "hearnow modes" and "hearnow templates" for the
// custom assistant modes and question templates.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codev612/hearnow/internal/catalog"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List custom assistant modes",
	Args:  cobra.NoArgs,
	RunE:  runModes,
}

var modesAddCmd = &cobra.Command{
	Use:   "add <preset>",
	Short: "Add a mode from a built-in preset",
	Long: `Copy a built-in preset into a new custom mode. Presets:
interview, standup, sales, lecture.`,
	Args: cobra.ExactArgs(1),
	RunE: runModesAdd,
}

var modesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a custom mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runModesDelete,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List question templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplates,
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a question template; the body is read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesAdd,
}

var templatesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Replace a template's body from stdin, saving as lines arrive",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesEdit,
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a question template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesDelete,
}

func init() {
	modesCmd.AddCommand(modesAddCmd, modesDeleteCmd)
	templatesCmd.AddCommand(templatesAddCmd, templatesEditCmd, templatesDeleteCmd)
}

func loadModes(cmd *cobra.Command, e *env) (*catalog.Modes, error) {
	modes := catalog.NewModes(e.store, e.log)
	if err := modes.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return modes, nil
}

func loadTemplates(cmd *cobra.Command, e *env) (*catalog.Templates, error) {
	templates := catalog.NewTemplates(e.store, e.log)
	if err := templates.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return templates, nil
}

func runModes(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	modes, err := loadModes(cmd, e)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	items := modes.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "No custom modes. Add one with: hearnow modes add interview")
		return nil
	}
	for _, m := range items {
		model := m.Model
		if model == "" {
			model = "(default model)"
		}
		fmt.Fprintf(out, "  %-36s  %-20s  %s\n", m.ID, truncate(m.Label, 20), model)
	}
	return nil
}

func runModesAdd(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	modes, err := loadModes(cmd, e)
	if err != nil {
		return err
	}
	m, err := catalog.AddFromPreset(cmd.Context(), modes, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added mode %q (%s)\n", m.Label, m.ID)
	return nil
}

func runModesDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	modes, err := loadModes(cmd, e)
	if err != nil {
		return err
	}
	if _, ok := modes.Get(args[0]); !ok {
		return fmt.Errorf("no mode with id %q", args[0])
	}
	if err := modes.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted mode %s\n", args[0])
	return nil
}

func runTemplates(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	templates, err := loadTemplates(cmd, e)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	items := templates.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "No question templates.")
		return nil
	}
	for _, t := range items {
		questions := len(strings.FieldsFunc(t.Body, func(r rune) bool { return r == '\n' }))
		fmt.Fprintf(out, "  %-36s  %-24s  %d questions\n", t.ID, truncate(t.Name, 24), questions)
	}
	return nil
}

func runTemplatesAdd(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	body, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	templates, err := loadTemplates(cmd, e)
	if err != nil {
		return err
	}
	t := catalog.NewTemplate(args[0], strings.TrimSpace(string(body)))
	if err := templates.Add(cmd.Context(), t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added template %q (%s)\n", t.Name, t.ID)
	return nil
}

func runTemplatesEdit(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	templates, err := loadTemplates(cmd, e)
	if err != nil {
		return err
	}
	editor, ok := catalog.OpenEditor(cmd.Context(), templates, args[0], catalog.FieldBody, e.cfg.Autosave())
	if !ok {
		return fmt.Errorf("no template with id %q", args[0])
	}

	var lines []string
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		editor.Edit(strings.Join(lines, "\n"))
	}
	if err := editor.Close(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved template %s\n", args[0])
	return nil
}

func runTemplatesDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	templates, err := loadTemplates(cmd, e)
	if err != nil {
		return err
	}
	if _, ok := templates.Get(args[0]); !ok {
		return fmt.Errorf("no template with id %q", args[0])
	}
	if err := templates.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", args[0])
	return nil
}
