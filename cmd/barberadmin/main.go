// Command barberadmin は店舗管理APIサーバーとバックグラウンドジョブを起動する。
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/barberadmin/internal/app"
)

func main() {
	// .envは開発用。存在しない場合は環境変数のみを使う
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "barberadmin: %v\n", err)
		os.Exit(1)
	}
}
