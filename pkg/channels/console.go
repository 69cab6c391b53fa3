package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/utils"
)

const consoleChatID = "console"

// ConsoleOptions configures a ConsoleChannel. Nil streams use the terminal.
type ConsoleOptions struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
	// MaxBytes rejects larger local files in Download. Zero means no limit.
	MaxBytes int64
}

// ConsoleChannel treats every line typed on the terminal as an owner
// message. "text < path" sends text as a reply to the local file at path.
type ConsoleChannel struct {
	*BaseChannel
	opts ConsoleOptions
	seq  atomic.Int64

	mu     sync.Mutex
	rl     *readline.Instance
	out    io.Writer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsoleChannel(mb *bus.MessageBus, opts ConsoleOptions) *ConsoleChannel {
	if opts.Prompt == "" {
		opts.Prompt = "» "
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel(config.TransportConsole, mb),
		opts:        opts,
		out:         out,
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.opts.Prompt,
		HistoryFile:     c.opts.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           c.opts.Stdin,
		Stdout:          c.opts.Stdout,
	})
	if err != nil {
		return fmt.Errorf("%w: open console: %v", ErrTransport, err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.rl = rl
	c.out = rl.Stdout()
	c.cancel = cancel
	c.mu.Unlock()
	c.setRunning(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.markDone()
		c.readLoop(readCtx, rl)
	}()
	go func() {
		<-readCtx.Done()
		_ = rl.Close()
	}()
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context, rl *readline.Instance) {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.WarnCF("console", "Console read failed", map[string]any{"error": err.Error()})
			}
			return
		}

		evt := c.parseLine(line)
		if evt.Text == "" {
			continue
		}
		if !c.publish(ctx, evt) {
			return
		}
	}
}

// parseLine builds an event from one console line.
func (c *ConsoleChannel) parseLine(line string) bus.Event {
	n := c.seq.Add(1)
	evt := bus.Event{
		ID:        uuid.NewString(),
		ChatID:    consoleChatID,
		MessageID: strconv.FormatInt(n, 10),
		SenderID:  consoleChatID,
		Text:      strings.TrimSpace(line),
	}
	if i := strings.LastIndex(evt.Text, " < "); i >= 0 {
		path := strings.TrimSpace(evt.Text[i+3:])
		evt.Text = strings.TrimSpace(evt.Text[:i])
		if path != "" {
			evt.IsReply = true
			evt.ReplyTo = path
			doc := &bus.Document{FileID: path, FileName: filepath.Base(path)}
			if st, err := os.Stat(path); err == nil {
				doc.Size = st.Size()
			}
			evt.ReplyDocument = doc
		}
	}
	return evt
}

// Edit prints the reply. Repeated edits print the new text again.
func (c *ConsoleChannel) Edit(_ context.Context, evt bus.Event, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.out, "[%s] %s\n", evt.MessageID, text); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Download copies the local file named by doc into dir.
func (c *ConsoleChannel) Download(ctx context.Context, doc bus.Document, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(doc.FileID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer src.Close()
	if limit := c.opts.MaxBytes; limit > 0 {
		info, err := src.Stat()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if info.Size() > limit {
			return "", fmt.Errorf("%w: file is %d bytes, limit is %d", ErrTransport, info.Size(), limit)
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	name := doc.FileName
	if name == "" {
		name = filepath.Base(doc.FileID)
	}
	dest := filepath.Join(dir, utils.UniqueName(name))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return "", err
	}
	return dest, out.Close()
}

// Self describes the local user.
func (c *ConsoleChannel) Self(context.Context) (bus.Identity, error) {
	id := bus.Identity{ID: consoleChatID}
	if u, err := user.Current(); err == nil {
		id.Username = u.Username
		id.Name = u.Name
	}
	return id, nil
}

func (c *ConsoleChannel) Disconnect(context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	rl := c.rl
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if rl != nil {
		_ = rl.Close()
	}
	c.wg.Wait()
	c.markDone()
	return nil
}
