package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/app"
	"github.com/yungbote/dcengine/internal/platform/envutil"
)

func main() {
	var issueFor string
	var tokenTTL time.Duration
	flag.StringVar(&issueFor, "issue-token", "", "print a bearer token for the given principal id and exit")
	flag.DurationVar(&tokenTTL, "token-ttl", time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	grace := envutil.Duration("SHUTDOWN_GRACE", 15*time.Second)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := application.Close(ctx); err != nil {
			fmt.Printf("shutdown: %v\n", err)
		}
	}()

	if issueFor != "" {
		id, err := uuid.Parse(issueFor)
		if err != nil || id == uuid.Nil {
			fmt.Printf("invalid principal id %q\n", issueFor)
			return
		}
		token, err := application.Auth.Issue(id, tokenTTL)
		if err != nil {
			fmt.Printf("issue token: %v\n", err)
			return
		}
		fmt.Println(token)
		return
	}

	application.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- application.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		application.Log.Info("Shutting down", "signal", s.String())
	case err := <-errCh:
		if err != nil {
			application.Log.Error("Server failed", "error", err)
		}
	}
}
