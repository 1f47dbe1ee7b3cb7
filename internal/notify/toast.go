package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	toastTimeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	toastTitleStyle = lipgloss.NewStyle().Bold(true)

	toastLevelStyles = map[Level]lipgloss.Style{
		LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// WriterToaster renders each toast as one styled line on W and records it
// in the log. lipgloss drops the colors when W is not a terminal.
type WriterToaster struct {
	W   io.Writer
	Log *slog.Logger
	Now func() time.Time

	mu sync.Mutex
}

// NewWriterToaster returns a WriterToaster writing to w.
func NewWriterToaster(w io.Writer, log *slog.Logger) *WriterToaster {
	return &WriterToaster{W: w, Log: log, Now: time.Now}
}

// Toast implements [Toaster].
func (t *WriterToaster) Toast(msg Message) error {
	if t.Log != nil {
		t.Log.Info("toast", "level", string(msg.Level), "title", msg.Title, "body", msg.Body)
	}
	if t.W == nil {
		return nil
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	line := FormatToast(msg, now())

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.W, line)
	return err
}

// FormatToast renders msg as "15:04:05 [level] title: body".
func FormatToast(msg Message, at time.Time) string {
	level := msg.Level
	if level == "" {
		level = LevelInfo
	}
	style, ok := toastLevelStyles[level]
	if !ok {
		style = toastLevelStyles[LevelInfo]
	}
	return fmt.Sprintf("%s %s %s: %s",
		toastTimeStyle.Render(at.Format("15:04:05")),
		style.Render("["+string(level)+"]"),
		toastTitleStyle.Render(msg.Title),
		msg.Body,
	)
}
