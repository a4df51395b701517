// Command chatproxy は言語モデルへのチャットを中継する認証付きWebサービスを起動する。
//
// 使い方:
//
//	chatproxy [serve|worker|migrate|healthcheck|chat]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/chatproxy/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatproxy: %v\n", err)
		os.Exit(1)
	}
}
