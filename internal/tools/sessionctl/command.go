// Package sessionctl implements the operator view over the session registry:
// a styled table of provisioned sessions with their remaining lifetime.
package sessionctl

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/registry"
	"github.com/legalsandbox/research-backend/internal/tools/common"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	expiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type options struct {
	registryPath string
	envFile      string
	jsonOut      bool
	watch        bool
	interval     time.Duration
}

func NewCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect the provisioned session registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			if path := os.Getenv("SESSION_REGISTRY_PATH"); path != "" && !cmd.Flags().Changed("registry") {
				opts.registryPath = path
			}
			if !opts.watch {
				return render(cmd, opts)
			}
			for {
				if err := render(cmd, opts); err != nil {
					return err
				}
				time.Sleep(opts.interval)
				fmt.Fprint(cmd.OutOrStdout(), "\n")
			}
		},
	}
	cmd.Flags().StringVar(&opts.registryPath, "registry", "sessions.json", "path to the session registry")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "env file applied before reading flags")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "machine-readable output")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "refresh the table periodically")
	cmd.Flags().DurationVar(&opts.interval, "interval", 30*time.Second, "refresh interval for --watch")
	return cmd
}

type sessionRow struct {
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Remaining string    `json:"remaining"`
	Expired   bool      `json:"expired"`
	Active    bool      `json:"active"`
}

func render(cmd *cobra.Command, opts *options) error {
	sessions, err := registry.Load(opts.registryPath)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rows := buildRows(sessions, now)

	if opts.jsonOut {
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("encode session rows: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-20s %-14s %-17s %-17s %-10s %s",
		"USERNAME", "SESSION", "CREATED", "EXPIRES", "REMAINING", "STATE")))
	for _, row := range rows {
		state := activeStyle.Render("active")
		switch {
		case row.Expired:
			state = expiredStyle.Render("expired")
		case !row.Active:
			state = dimStyle.Render("inactive")
		}
		fmt.Fprintf(w, "%-20s %-14s %-17s %-17s %-10s %s\n",
			row.Username,
			shortID(row.SessionID),
			row.CreatedAt.Format("2006-01-02 15:04"),
			row.ExpiresAt.Format("2006-01-02 15:04"),
			row.Remaining,
			state,
		)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d sessions, checked at %s", len(rows), now.Format(time.RFC3339))))
	return nil
}

func buildRows(sessions []domain.Session, now time.Time) []sessionRow {
	rows := make([]sessionRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, sessionRow{
			Username:  s.Username,
			SessionID: s.SessionID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Remaining: formatRemaining(s.TimeRemaining(now)),
			Expired:   s.Expired(now),
			Active:    s.Active,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ExpiresAt.Before(rows[j].ExpiresAt) })
	return rows
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
