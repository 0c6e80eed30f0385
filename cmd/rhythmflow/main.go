// Command rhythmflow は習慣トラッカーのAPIサーバー、ワーカー、マイグレーションを起動する。
//
//	rhythmflow [serve]        APIサーバー
//	rhythmflow worker         クリーンアップワーカー
//	rhythmflow migrate [down] マイグレーション
//	rhythmflow healthcheck    /healthの疎通確認
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/rhythmflow/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rhythmflow: %v\n", err)
		os.Exit(1)
	}
}
