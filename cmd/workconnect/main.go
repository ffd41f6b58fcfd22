package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root, c := newRootCmd()
	err := root.ExecuteContext(ctx)

	if cerr := c.close(); cerr != nil {
		c.logger().Warn("store_close_failed", slog.String("err", cerr.Error()))
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, message(err))
		os.Exit(1)
	}
}

// message — текст ошибки для пользователя: для ошибок API это UserMessage,
// для остальных (конфиг, флаги, хранилище) — сама ошибка.
func message(err error) string {
	if apierr.KindOf(err) != apierr.KindUnknown {
		return apierr.UserMessage(err)
	}

	return err.Error()
}

// setupLogger пишет в w (stderr), чтобы stdout оставался под вывод команд.
// level из --log-level перекрывает уровень по умолчанию для env.
func setupLogger(env, level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch env {
	case envProd:
		lvl = slog.LevelInfo
	default:
		lvl = slog.LevelDebug
	}

	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			lvl = slog.LevelWarn
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch env {
	case envDev, envProd:
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}
