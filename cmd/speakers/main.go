// 列出 VOICEVOX 引擎当前可用的话者及其 style。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iabetor/manzai-stage/internal/voicevox"
)

func main() {
	baseURL := flag.String("url", "http://localhost:50021", "VOICEVOX 引擎地址")
	flag.Parse()

	client := voicevox.NewClient(*baseURL, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	version, err := client.Version(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "连接 VOICEVOX 失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("VOICEVOX %s (%s)\n\n", version, *baseURL)

	speakers, err := client.Speakers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取话者列表失败: %v\n", err)
		os.Exit(1)
	}

	for _, s := range speakers {
		fmt.Printf("%4d  %s（%s）\n", s.ID, s.Name, s.StyleName)
	}
	fmt.Printf("\n共 %d 个话者\n", len(speakers))
}
