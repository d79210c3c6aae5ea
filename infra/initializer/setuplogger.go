package initializer

import (
	"log/slog"
	"os"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

type levelStyle struct {
	icon  string
	color lipgloss.AdaptiveColor
}

var levelStyles = map[log.Level]levelStyle{
	log.ErrorLevel: {"❌", lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}},
	log.WarnLevel:  {"⚠️", lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}},
	log.InfoLevel:  {"ℹ️", lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}},
	log.DebugLevel: {"🐛", lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}},
}

// Keys that get highlighted in text output. Money and ids are what operators
// grep for when reconciling.
var highlightedKeys = []string{
	"error", "payment_id", "gateway_tx_id", "user_id", "provider", "outcome", "status",
}

// setupLogger builds the charmbracelet handler, installs it as the slog
// default and returns it.
func setupLogger(cfg *config.Log) *slog.Logger {
	if cfg == nil {
		cfg = &config.Log{Format: "text"}
	}
	styles := log.DefaultStyles()
	for level, ls := range levelStyles {
		styles.Levels[level] = lipgloss.NewStyle().
			SetString(ls.icon).
			Bold(true).
			Padding(0, 1).
			Foreground(ls.color)
	}
	keyColor := levelStyles[log.DebugLevel].color
	for _, k := range highlightedKeys {
		styles.Keys[k] = lipgloss.NewStyle().Foreground(keyColor)
		styles.Values[k] = lipgloss.NewStyle().Bold(true)
	}
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(levelStyles[log.ErrorLevel].color)

	formatter := log.TextFormatter
	switch cfg.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	logger := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           log.Level(cfg.Level),
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(styles)

	slogger := slog.New(logger)
	slog.SetDefault(slogger)
	return slogger
}
