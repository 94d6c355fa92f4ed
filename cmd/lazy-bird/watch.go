package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yusufkaraaslan/lazy-bird/internal/store"
	"github.com/yusufkaraaslan/lazy-bird/internal/watcher"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll git platforms for ready issues and queue agent tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "poll a single time and exit")
	rootCmd.AddCommand(watchCmd)
}

func runWatch() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	projects := store.NewConfigStore(cfg.ConfigPath)
	tasks := store.NewTaskStore(cfg.QueueDir)
	w := watcher.New(cfg, projects, tasks, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if watchOnce {
		w.PollOnce(ctx)
		return nil
	}
	w.Run(ctx)
	return nil
}
