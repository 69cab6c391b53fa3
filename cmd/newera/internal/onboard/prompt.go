package onboard

import (
	"io"
	"os"

	"github.com/chzyer/readline"
)

// Terminal prompts on the controlling terminal.
type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.Writer
}

func (t Terminal) config(prompt string) *readline.Config {
	cfg := &readline.Config{
		Prompt: prompt,
		Stdin:  t.Stdin,
		Stdout: t.Stdout,
		Stderr: os.Stderr,
	}
	return cfg
}

// Ask reads one line. An empty answer yields def.
func (t Terminal) Ask(label, def string) (string, error) {
	prompt := label + ": "
	if def != "" {
		prompt = label + " [" + def + "]: "
	}
	rl, err := readline.NewEx(t.config(prompt))
	if err != nil {
		return "", err
	}
	defer rl.Close()
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Secret reads one line without echoing it.
func (t Terminal) Secret(label string) (string, error) {
	cfg := t.config(label + ": ")
	cfg.EnableMask = true
	cfg.MaskRune = '*'
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return "", err
	}
	defer rl.Close()
	return rl.Readline()
}
