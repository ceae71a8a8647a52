package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/adapter/fs"
	"nexus/internal/domain"
	"nexus/internal/usecase"
)

var (
	chatDocs []string
	chatFile string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with ingested documents or a single file",
	Long: `Start an interactive conversation. Answers are grounded in the ingested
documents (optionally restricted with --doc), or in one file given with --file,
which is embedded for this session only and never stored.

Type /clear to forget the conversation, /exit to leave. Ctrl-C stops the
answer being generated.

Examples:
  nexus chat
  nexus chat --doc handbook --doc policies
  nexus chat --file meeting-notes.md`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringSliceVar(&chatDocs, "doc", nil, "restrict to these document ids (default all)")
	chatCmd.Flags().StringVar(&chatFile, "file", "", "chat with this file instead of the index")
}

func runChat(cmd *cobra.Command, args []string) error {
	// the root context ends on the first interrupt; turns cancel on their own
	ctx := context.WithoutCancel(cmd.Context())

	a, err := openApp(ctx, GetRootDir(), GetConfig(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	var s domain.Session
	if chatFile != "" {
		text, err := fs.ReadFile(chatFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", chatFile, err)
		}
		s, err = a.engine.StartFileSession(ctx, filepath.Base(chatFile), text)
		if err != nil {
			return err
		}
		fmt.Printf("Chatting with %s\n", s.FileName)
	} else {
		scope := chatDocs
		if len(scope) == 0 {
			if scope, err = a.retrieve.AllIngested(); err != nil {
				return err
			}
		}
		s = a.engine.StartDatabaseSession(scope)
		fmt.Printf("Chatting with %d document(s)\n", len(s.Scope))
	}
	defer a.engine.End(s.ID)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("\n> ")
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := a.engine.Clear(s.ID); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			continue
		}

		if err := chatTurn(ctx, a.engine, s.ID, line); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return fmt.Errorf("session expired")
			}
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		}
	}
}

func chatTurn(ctx context.Context, engine *usecase.ConversationEngine, sessionID, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	stream, err := engine.Send(turnCtx, sessionID, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		fmt.Print(frag)
	}
	fmt.Println()

	if err := stream.Err(); err != nil {
		if usecase.IsCancelled(err) {
			fmt.Println("(stopped)")
			return nil
		}
		return err
	}

	if s, err := engine.Session(sessionID); err == nil {
		if last, ok := s.LastTurn(); ok {
			printSources(last.Context)
		}
	}
	return nil
}
