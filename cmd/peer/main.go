package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dontdude/coderoom/internal/collab"
	"github.com/dontdude/coderoom/internal/config"
	"github.com/dontdude/coderoom/internal/domain"
	"github.com/dontdude/coderoom/internal/execution"
	"github.com/dontdude/coderoom/internal/platform/piston"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	server := flag.String("server", "ws://localhost:8080/ws", "room server websocket URL")
	room := flag.String("room", "", "room id to join (a new one is generated when empty)")
	name := flag.String("name", "", "display name shown to other participants")
	lang := flag.String("lang", string(domain.DefaultLanguage), "initial language")
	file := flag.String("file", "", "mirror the shared buffer to this file")
	poll := flag.Duration("poll", 500*time.Millisecond, "how often the mirrored file is checked for edits")
	executor := flag.String("executor", cfg.ExecutorURL, "execution service endpoint")
	flag.Parse()

	config.SetupLogger(cfg.LogLevel)

	initial, err := domain.ParseLanguage(*lang)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *room == "" {
		*room = uuid.New().String()
		fmt.Printf("created room %s\n", *room)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *room, *name, initial, *file, *poll, *executor); err != nil {
		slog.Error("peer stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, roomID, name string, lang domain.Language, file string, poll time.Duration, executor string) error {
	transport, err := collab.Dial(ctx, server)
	if err != nil {
		return err
	}
	defer transport.Close()

	notifier := domain.NotifierFunc(notify)
	buf := collab.NewMemoryBuffer("")
	sess := collab.NewSession(roomID, name, lang, buf, transport, notifier)
	defer sess.Close()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- transport.Listen(ctx, func(env domain.Envelope) {
			if err := sess.Handle(env); err != nil {
				slog.Warn("failed to handle message", "event", env.Event, "error", err)
			}
		})
	}()

	if err := sess.Join(); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	if file != "" {
		mirror := collab.NewFileMirror(file, buf, poll)
		go func() {
			if err := mirror.Run(ctx); err != nil {
				slog.Error("file mirror stopped", "path", file, "error", err)
			}
		}()
		fmt.Printf("mirroring buffer to %s\n", file)
	}

	orch := execution.NewOrchestrator(piston.New(executor, 30*time.Second), notifier)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println(usage)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-listenErr:
			var connErr *collab.ConnectionError
			if errors.As(err, &connErr) {
				notify(domain.NoticeFailure, "Connection to the room server was lost")
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := dispatch(ctx, line, sess, buf, orch); done {
				return nil
			}
		}
	}
}

// dispatch executes one command line and reports whether the peer should exit.
func dispatch(ctx context.Context, line string, sess *collab.Session, buf collab.Buffer, orch *execution.Orchestrator) bool {
	cmd, err := parseCommand(line)
	if errors.Is(err, errEmptyCommand) {
		return false
	}
	if err != nil {
		fmt.Println(err)
		return false
	}

	switch cmd.kind {
	case cmdLanguage:
		if err := sess.SetLanguage(cmd.language); err != nil {
			fmt.Println(err)
		}
	case cmdRun:
		go func() {
			res, err := orch.Submit(ctx, buf.Content(), sess.Language(), cmd.stdin)
			if err != nil {
				if errors.Is(err, domain.ErrExecutionInFlight) {
					fmt.Println("a run is already in progress")
				}
				return
			}
			fmt.Print(res.Display())
			orch.Dismiss()
		}()
	case cmdWho:
		fmt.Print(formatMembers(sess.Members(), sess.SelfID()))
	case cmdShow:
		fmt.Printf("--- %s (%s) ---\n%s\n---\n", sess.RoomID(), sess.Language(), buf.Content())
	case cmdHelp:
		fmt.Println(usage)
	case cmdQuit:
		return true
	}
	return false
}

func notify(kind domain.NoticeKind, message string) {
	switch kind {
	case domain.NoticeFailure:
		slog.Warn(message, "kind", kind)
	default:
		slog.Info(message, "kind", kind)
	}
}
