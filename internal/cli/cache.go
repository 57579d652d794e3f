package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cutty/internal/repository"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the template cache",
	}
	cmd.AddCommand(newCacheListCmd(a))
	cmd.AddCommand(newCacheCleanCmd(a))
	return cmd
}

func newCacheListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.storage().List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.out, faintStyle.Render("The cache at "+a.cfg.CacheDir+" is empty."))
				return nil
			}
			fmt.Fprintln(a.out, titleStyle.Render("Cached templates"))
			fmt.Fprintln(a.out, renderRecords(records, time.Now()))
			return nil
		},
	}
}

func newCacheCleanCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove cached templates that have not been used recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := a.cacheMaxAge()
			if cmd.Flags().Changed("older-than") {
				age = olderThan
			}

			removed, err := a.storage().Clean(time.Now().Add(-age))
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(a.out, faintStyle.Render("Nothing to remove."))
				return nil
			}
			fmt.Fprintln(a.out, renderSuccess("Removed %d cached template(s)", len(removed)))
			fmt.Fprintln(a.out, renderRecords(removed, time.Now()))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "remove entries unused for this long (default from config)")
	return cmd
}

// renderRecords formats cache records as aligned rows.
func renderRecords(records []repository.StorageRecord, now time.Time) string {
	width := 0
	for _, r := range records {
		width = max(width, lipgloss.Width(r.URL))
	}

	rows := make([]string, 0, len(records))
	for _, r := range records {
		url := pathStyle.Width(width + 2).Render(r.URL)
		provider := lipgloss.NewStyle().Width(9).Render(r.Provider)
		age := faintStyle.Render(formatAge(now.Sub(r.Updated)) + " ago")
		rows = append(rows, url+provider+age)
	}
	return listStyle.Render(strings.Join(rows, "\n"))
}

func formatAge(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return "moments"
	}
}
