package internal

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
)

const Logo = "◆"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

func GetConfigPath() string {
	return config.ResolveRuntimePaths().ConfigPath
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// SetupLogging applies the log section of cfg. debug forces DEBUG.
func SetupLogging(cfg *config.Config, debug bool) error {
	level := logger.ParseLevel(cfg.Log.Level)
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	logger.SetRedactionEnabled(cfg.Log.Redact)
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			return fmt.Errorf("enable file logging: %w", err)
		}
	}
	return nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}

// Banner is printed when the bot starts.
func Banner() string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	var b strings.Builder
	b.WriteString(title.Render(Logo + " NewEraV4Fix"))
	b.WriteString("\n")
	b.WriteString(muted.Render("Version: " + FormatVersion()))
	if build, _ := FormatBuildInfo(); build != "" {
		b.WriteString("\n")
		b.WriteString(muted.Render("Build: " + build))
	}
	return lipgloss.NewStyle().PaddingLeft(1).Render(b.String())
}
