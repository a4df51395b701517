package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hitoshi/chatproxy/internal/client"
)

// chatOptions はchatサブコマンドの接続先とセッション保存先。
type chatOptions struct {
	BaseURL     string
	SessionPath string
}

// chatOptionsFromEnv は環境変数からchatサブコマンドの設定を読み込む。
// CHATPROXY_SESSION_PATHが未設定の場合はユーザー設定ディレクトリ配下に保存する。
func chatOptionsFromEnv() chatOptions {
	sessionPath := os.Getenv("CHATPROXY_SESSION_PATH")
	if sessionPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		sessionPath = filepath.Join(dir, "chatproxy", "session.json")
	}
	return chatOptions{
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		SessionPath: sessionPath,
	}
}

const replHelp = `commands:
  /register <email> <password> <name...>
  /login <email> <password>
  /logout
  /me
  /help
  /quit
any other line is sent as a chat message`

// runChat は対話型のチャットクライアントを起動する。
// inから1行ずつ読み取り、スラッシュで始まる行はコマンド、それ以外はチャットメッセージとして送信する。
func runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions) error {
	c, err := client.New(opts.BaseURL, opts.SessionPath, nil)
	if err != nil {
		return err
	}
	if err := c.Load(); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if s, err := c.Session(); err == nil && s.LoggedIn() && s.User != nil {
		fmt.Fprintf(out, "logged in as %s\n", s.User.Email)
	} else {
		fmt.Fprintln(out, "not logged in; use /login or /register")
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := handleLine(ctx, c, out, line); quit {
			return nil
		}
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

// handleLine は1行分の入力を処理する。/quitの場合はtrueを返す。
// 個々の操作の失敗は出力に表示し、REPLは継続する。
func handleLine(ctx context.Context, c *client.Client, out io.Writer, line string) bool {
	if !strings.HasPrefix(line, "/") {
		reply, err := c.Chat(ctx, line)
		if err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintln(out, reply)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Fprintln(out, replHelp)

	case "/register":
		if len(fields) < 4 {
			fmt.Fprintln(out, "usage: /register <email> <password> <name...>")
			return false
		}
		u, err := c.Register(ctx, fields[1], fields[2], strings.Join(fields[3:], " "))
		if err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintf(out, "registered and logged in as %s\n", u.Email)

	case "/login":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: /login <email> <password>")
			return false
		}
		u, err := c.Login(ctx, fields[1], fields[2])
		if err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintf(out, "logged in as %s\n", u.Email)

	case "/logout":
		if err := c.Logout(ctx); err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintln(out, "logged out")

	case "/me":
		u, err := c.Me(ctx)
		if err != nil {
			printError(out, err)
			return false
		}
		fmt.Fprintf(out, "%s <%s> (id: %s)\n", u.Name, u.Email, u.ID)

	default:
		fmt.Fprintf(out, "unknown command %q; type /help\n", fields[0])
	}
	return false
}

func printError(out io.Writer, err error) {
	var respErr *client.ResponseError
	switch {
	case errors.Is(err, client.ErrNotLoggedIn):
		fmt.Fprintln(out, "error: not logged in; use /login or /register")
	case errors.As(err, &respErr):
		fmt.Fprintf(out, "error: %s\n", respErr.Message)
	default:
		fmt.Fprintf(out, "error: %v\n", err)
	}
}
