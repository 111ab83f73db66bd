package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/RichardoC/deeptok/internal/config"
	"github.com/RichardoC/deeptok/internal/conversation"
	"github.com/RichardoC/deeptok/internal/db"
	"github.com/RichardoC/deeptok/internal/identity"
	"github.com/RichardoC/deeptok/internal/prayer"
	"github.com/RichardoC/deeptok/internal/render"
	"github.com/RichardoC/deeptok/internal/responder"
)

const usage = "Perintah: /name <nama>, /logout, /clear, /quit"

// console draws the chat in a terminal, redrawing the whole history on
// every render like the web widget does.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) Show(view render.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "\033[H\033[2J")
	fmt.Fprint(c.out, render.Text(view, 80))
	fmt.Fprint(c.out, "> ")
}

func (c *console) Typing(on bool) {
	if !on {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, "\nDeepTok sedang mengetik...")
}

func (c *console) Notice(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\n! %s\n", text)
}

func (c *console) println(a ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, a...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	// Only warnings and errors reach the terminal unless debugging.
	zcfg := zap.NewProductionConfig()
	if cfg.LogLevel != "debug" {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	database := db.New(cfg.DBPath, logger)
	if err := database.Open(ctx); err != nil {
		logger.Fatal("chat unavailable", zap.Error(err), zap.String("dbPath", cfg.DBPath))
	}

	out := &console{out: os.Stdout}
	chat := conversation.NewService(
		database,
		database.Identity(),
		responder.NewDefault(prayer.New(cfg.PrayerBaseURL, cfg.PrayerTimeout, logger)),
		out,
		conversation.Config{ReplyDelay: cfg.ReplyDelay, Assistant: cfg.AssistantName},
		logger,
	)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	if err := run(ctx, chat, out, logger, lines); err != nil {
		logger.Error("console stopped", zap.Error(err))
	}
}

func run(ctx context.Context, chat *conversation.Service, out *console, logger *zap.Logger, lines <-chan string) error {
	// redraw gives up only when the store is gone; other failures were
	// already shown to the user as a notice.
	redraw := func(who string) error {
		err := chat.Render(ctx, who)
		if errors.Is(err, conversation.ErrUnavailable) {
			return err
		}
		if err != nil {
			logger.Warn("render failed", zap.String("username", who), zap.Error(err))
		}
		return nil
	}

	who, err := login(ctx, chat, out, lines)
	if err != nil {
		return err
	}
	out.println(usage)
	if err := redraw(who); err != nil {
		return err
	}

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "/quit":
			return nil
		case line == "/logout":
			if err := chat.ChangeName(ctx); err != nil {
				out.Notice(err.Error())
				continue
			}
			if who, err = login(ctx, chat, out, lines); err != nil {
				return err
			}
			if err := redraw(who); err != nil {
				return err
			}
		case strings.HasPrefix(line, "/name "):
			name, err := chat.Login(ctx, strings.TrimPrefix(line, "/name "))
			if err != nil {
				out.Notice(err.Error())
				continue
			}
			who = name
			if err := redraw(who); err != nil {
				return err
			}
		case line == "/clear":
			out.println("Yakin ingin hapus chat? Anda juga harus login kembali. [y/N]")
			answer, ok := <-lines
			if !ok {
				return nil
			}
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				continue
			}
			chat.Clear(ctx)
			if who, err = login(ctx, chat, out, lines); err != nil {
				return err
			}
		default:
			_, err := chat.Submit(ctx, who, line)
			if errors.Is(err, conversation.ErrUnavailable) {
				return err
			}
		}
	}
}

// login returns the stored name or asks for one until it gets a valid one.
func login(ctx context.Context, chat *conversation.Service, out *console, lines <-chan string) (string, error) {
	name, ok, err := chat.Identity(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return name, nil
	}

	for {
		out.println("Masukkan nama Anda:")
		select {
		case <-ctx.Done():
			return identity.DefaultName, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return identity.DefaultName, io.EOF
			}
			name, err := chat.Login(ctx, line)
			if errors.Is(err, conversation.ErrEmptyName) {
				out.println(err.Error())
				continue
			}
			if err != nil {
				return "", err
			}
			return name, nil
		}
	}
}
