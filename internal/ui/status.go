package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the on-disk index's current health.
type StatusInfo struct {
	ProjectName string    `json:"project_name"`
	TotalFiles  int       `json:"total_files"`
	TotalChunks int       `json:"total_chunks"`
	LastIndexed time.Time `json:"last_indexed"`

	ManifestSize int64 `json:"manifest_size"`
	BM25Size     int64 `json:"bm25_size"`
	VectorSize   int64 `json:"vector_size"`
	TotalSize    int64 `json:"total_size"`

	EmbedderProvider string `json:"embedder_provider"`
	EmbedderStatus   string `json:"embedder_status"` // "ready", "offline", "error"
	EmbedderModel    string `json:"embedder_model,omitempty"`
	WatcherStatus    string `json:"watcher_status"` // "running", "stopped", "n/a"
}

// StatusRenderer displays index status either as a single structured line
// (non-interactive output) or as a short multi-line report (interactive
// terminal), the distinction go-isatty's IsTTY check decides for its caller.
type StatusRenderer struct {
	out    io.Writer
	inline bool
}

// NewStatusRenderer creates a status renderer. inline requests the
// single-line form used when output is not an interactive terminal.
func NewStatusRenderer(out io.Writer, inline bool) *StatusRenderer {
	return &StatusRenderer{out: out, inline: inline}
}

// Render writes a human-readable status report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	if r.inline {
		_, err := fmt.Fprintf(r.out, "%s: %d files, %d chunks, %s indexed, embedder=%s/%s (%s)\n",
			info.ProjectName, info.TotalFiles, info.TotalChunks, FormatBytes(info.TotalSize),
			info.EmbedderProvider, info.EmbedderModel, info.EmbedderStatus)
		return err
	}

	_, _ = fmt.Fprintf(r.out, "Index status: %s\n\n", info.ProjectName)

	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.TotalFiles)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.TotalChunks)
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Manifest: %s\n", FormatBytes(info.ManifestSize))
	_, _ = fmt.Fprintf(r.out, "    BM25:     %s\n", FormatBytes(info.BM25Size))
	_, _ = fmt.Fprintf(r.out, "    Vectors:  %s\n", FormatBytes(info.VectorSize))
	_, _ = fmt.Fprintf(r.out, "    Total:    %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider: %s\n", info.EmbedderProvider)
	_, _ = fmt.Fprintf(r.out, "    Status:   %s\n", info.EmbedderStatus)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:    %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintln(r.out)

	if info.WatcherStatus != "" && info.WatcherStatus != "n/a" {
		_, _ = fmt.Fprintf(r.out, "  Watcher: %s\n", info.WatcherStatus)
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count in human-readable units.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
