// chatsync is a console client for manual testing against a live
// backend: it tails one conversation and sends stdin lines into it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"

	"github.com/sensora/chatsync/config"
	"github.com/sensora/chatsync/contract"
	"github.com/sensora/chatsync/conversation"
	chatlog "github.com/sensora/chatsync/log"
	"github.com/sensora/chatsync/session"
	"github.com/sensora/chatsync/store"
)

func main() {
	convID := flag.String("conversation", "", "conversation id to open")
	uid := flag.String("uid", "", "user id, used when CHATSYNC_ID_TOKEN is unset")
	name := flag.String("name", "", "display name, used when CHATSYNC_ID_TOKEN is unset")
	flag.Parse()

	logger := slog.New(chatlog.NewHandler(os.Stderr))
	ctx := chatlog.WithLogger(context.Background(), logger)

	if *convID == "" {
		fmt.Fprintln(os.Stderr, "usage: chatsync -conversation <id> [-uid <id> -name <name>]")
		os.Exit(2)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Error("loading config", "errorMsg", err.Error())
		os.Exit(1)
	}

	sess := session.Session{UserID: *uid, Username: *name}
	if token := os.Getenv("CHATSYNC_ID_TOKEN"); token != "" {
		sess, err = session.FromIDToken(ctx, token)
		if err != nil {
			logger.Error("resolving session", "errorMsg", err.Error())
			os.Exit(1)
		}
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("creating firestore client", "errorMsg", err.Error())
		os.Exit(1)
	}
	defer client.Close()

	engine, err := conversation.Open(ctx, store.NewFirestore(client), sess, *convID, conversation.Options{
		PageSize:      cfg.PageSize,
		TypingTimeout: cfg.TypingTimeout,
		OnMessages: func(msgs []contract.Message) {
			if len(msgs) == 0 {
				return
			}
			head := msgs[0]
			if head.System {
				fmt.Printf("-- %s\n", head.Content)
				return
			}
			fmt.Printf("[%s] %s: %s\n", head.Timestamp.Format("15:04:05"), head.SenderName, head.Content)
		},
		OnTypingUsers: func(names []string) {
			if len(names) > 0 {
				fmt.Printf("(typing: %v)\n", names)
			}
		},
	})
	if err != nil {
		logger.Error("opening conversation", "conversationID", *convID, "errorMsg", err.Error())
		os.Exit(1)
	}
	defer engine.Close(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch line {
		case "/quit":
			return
		case "/more":
			if err := engine.LoadMore(ctx); err != nil {
				logger.Error("loading more history", "errorMsg", err.Error())
			}
		case "":
			continue
		default:
			if err := engine.Keystroke(ctx); err != nil {
				logger.Error("reporting keystroke", "errorMsg", err.Error())
			}
			if err := engine.Send(ctx, line); err != nil {
				logger.Error("sending message", "errorMsg", err.Error())
			}
		}
	}
}
