package infra

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// Template placeholders accepted in a notifier command.
const (
	PlaceholderText    = "{text}"
	PlaceholderSeconds = "{seconds}"
	PlaceholderMillis  = "{millis}"
)

// CommandNotifier implements domain.Notifier by running an external command.
type CommandNotifier struct {
	template []string

	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandNotifier creates a notifier. An empty template selects the
// platform default.
func NewCommandNotifier(template []string) *CommandNotifier {
	if len(template) == 0 {
		template = DefaultNotifierCommand(runtime.GOOS)
	}
	return &CommandNotifier{
		template: template,
		run:      runCombined,
	}
}

// DefaultNotifierCommand returns the broadcast command template for goos.
func DefaultNotifierCommand(goos string) []string {
	switch goos {
	case "windows":
		return []string{"msg", "*", "/TIME:" + PlaceholderSeconds, PlaceholderText}
	case "darwin":
		return []string{"osascript", "-e", `display notification "` + PlaceholderText + `" with title "hawkeye"`}
	default:
		return []string{"notify-send", "-t", PlaceholderMillis, "hawkeye", PlaceholderText}
	}
}

// Display shows text for durationSeconds.
func (n *CommandNotifier) Display(ctx context.Context, text string, durationSeconds int) error {
	if len(n.template) == 0 {
		return errors.New("notifier command is empty")
	}
	argv := expandTemplate(n.template, text, durationSeconds, runtime.GOOS == "darwin")

	out, err := n.run(ctx, argv[0], argv[1:]...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("notifier %s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("notifier %s: %w", argv[0], err)
	}
	return nil
}

func expandTemplate(template []string, text string, seconds int, appleScript bool) []string {
	if appleScript {
		text = strings.ReplaceAll(text, `\`, `\\`)
		text = strings.ReplaceAll(text, `"`, `\"`)
	}
	r := strings.NewReplacer(
		PlaceholderText, text,
		PlaceholderSeconds, strconv.Itoa(seconds),
		PlaceholderMillis, strconv.Itoa(seconds*1000),
	)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = r.Replace(arg)
	}
	return argv
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Ensure CommandNotifier implements domain.Notifier.
var _ domain.Notifier = (*CommandNotifier)(nil)
