package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/store"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-aligned rows under header.
func table(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// botView is the printable form of a bot. The secret is never included.
type botView struct {
	ID            string    `json:"bot_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	OwnerID       string    `json:"owner_id,omitempty"`
	AutoRestart   bool      `json:"auto_restart"`
	Status        string    `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`
	ContainerID   string    `json:"container_id,omitempty"`
	ContainerName string    `json:"container_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func viewOf(b *store.Bot) botView {
	return botView{
		ID:            b.ID,
		Name:          b.Name,
		Description:   b.Description,
		OwnerID:       b.OwnerID,
		AutoRestart:   b.AutoRestart,
		Status:        string(b.Status),
		StatusMessage: b.StatusMessage,
		ContainerID:   b.ContainerID.String,
		ContainerName: b.ContainerName.String,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
