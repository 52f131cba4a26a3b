// Command cyclelog は排卵周期記録APIのサーバー、ワーカー、マイグレーションを起動する。
//
//	cyclelog [serve]                  APIサーバー
//	cyclelog worker                   期限切れセッションの定期削除
//	cyclelog migrate [up|down|version]
//	cyclelog healthcheck              コンテナのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/cyclelog/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cyclelog: %v\n", err)
		os.Exit(1)
	}
}
