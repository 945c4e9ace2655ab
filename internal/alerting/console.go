package alerting

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ConsoleNotifier prints alerts instead of delivering them. It backs
// dry-run mode, so a run can be rehearsed without Telegram credentials.
type ConsoleNotifier struct {
	Out io.Writer
}

// Notify prints the rendered alert with HTML tags stripped.
func (n *ConsoleNotifier) Notify(ctx context.Context, note Notification) error {
	divider := strings.Repeat("=", 50)
	fmt.Fprintf(n.Out, "\n%s\n[dry run] alert that would be sent:\n%s%s\n\n",
		divider, stripHTML(RenderMessage(note)), divider)
	return nil
}

// NotifyOperator prints an operational warning.
func (n *ConsoleNotifier) NotifyOperator(ctx context.Context, message string) error {
	fmt.Fprintf(n.Out, "\n[dry run] operator warning: %s\n", message)
	return nil
}

func stripHTML(s string) string {
	replacer := strings.NewReplacer(
		"<b>", "", "</b>", "",
		"<i>", "", "</i>", "",
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
	)
	return replacer.Replace(s)
}

var _ Notifier = (*ConsoleNotifier)(nil)
