package observability

import (
	"chat-relay/domain"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/samber/lo"
)

// Console prints the feed on a terminal, one colored line per record.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
}

var _ Subscriber = (*Console)(nil)

func NewConsole(out io.Writer, colours bool) *Console {
	return &Console{out: out, colours: colours}
}

func (c *Console) OnLine(line Line) {
	text := fmt.Sprintf("%s %-5s %s%s", line.At.Format("15:04:05"), line.Level, line.Message, formatAttrs(line.Attrs))
	c.print(levelStyle(line.Level), text)
}

func (c *Console) OnUsers(users []domain.UserEntry) {
	names := lo.Map(users, func(u domain.UserEntry, _ int) string { return u.String() })
	text := fmt.Sprintf("Usuarios conectados (%d): %s", len(users), strings.Join(names, ", "))
	c.print(color.New(color.FgCyan, color.OpBold), text)
}

func (c *Console) print(style color.Style, text string) {
	if c.colours {
		text = style.Render(text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, text)
}

func levelStyle(level slog.Level) color.Style {
	switch {
	case level >= slog.LevelError:
		return color.New(color.FgRed, color.OpBold)
	case level >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case level >= slog.LevelInfo:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgGray)
	}
}

func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := lo.Keys(attrs)
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, attrs[k])
	}
	return b.String()
}
