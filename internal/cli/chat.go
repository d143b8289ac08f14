// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive conversation journal for chatkeep.
//
// Command: chat [--remote URL] [--model NAME] [--system PROMPT]
//
// Lines typed at the prompt are appended to the current conversation as
// user messages. Replies are recorded with /reply. Every change goes through
// the conversation cache, which writes it to the data directory or to a
// running service.
//
// Slash commands:
//   /new [system prompt]  Start a conversation
//   /reply <text>         Record an assistant reply
//   /list                 List cached conversations
//   /switch <n>           Select conversation n from /list
//   /show                 Print the current conversation
//   /delete [n]           Delete the current or the nth conversation
//   /retry                Retry deletes that failed
//   /clear                Delete every conversation
//   /help                 Show commands
//   /quit                 Exit

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatkeep/internal/chatcache"
	"github.com/jeranaias/chatkeep/internal/client"
	"github.com/jeranaias/chatkeep/internal/config"
	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/util"
)

// DefaultSystemPrompt seeds conversations started without --system.
const DefaultSystemPrompt = "You are a helpful assistant."

// historyFileName is the liner history file inside the config directory.
const historyFileName = "chat_history"

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of input after showing prompt.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// ChatCLI provides line editing and history for the chat prompt.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, historyFileName)}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// Prompt reads a line and records non-empty input in the history.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (c *ChatCLI) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// scanReader reads lines from a non-interactive stream.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *app) chatCommand() *cobra.Command {
	var remote, modelName, system string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Record conversations interactively",
		Long: `Open an interactive prompt over the stored conversations. Typed
lines become user messages and /reply records the assistant side. Type /help
for the list of commands.`,
		Example: `  chatkeep chat
  chatkeep chat --model gpt-4o --system "You are a terse reviewer"
  chatkeep chat --remote http://127.0.0.1:3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			namer, err := a.cfg.Namer()
			if err != nil {
				return err
			}
			opts := chatcache.Options{
				Window:           a.cfg.Cache.Window,
				FetchConcurrency: a.cfg.Cache.FetchConcurrency,
				Namer:            namer,
				Logger:           a.logger,
			}

			var backend chatcache.Backend
			if remote != "" {
				backend = client.New(remote)
				opts.Errors = errlog.New(a.cfg.ErrLog.Capacity)
			} else {
				st, err := a.openStores()
				if err != nil {
					return err
				}
				backend = st.repo
				opts.Errors = st.errors
			}

			cache := chatcache.New(backend, opts)
			defer cache.Close()
			if err := cache.Load(ctx); err != nil {
				a.logger.Warn("could not load conversations", "err", err)
			}

			var in lineReader
			if isTerminal(cmd.InOrStdin()) {
				c := NewChatCLI()
				defer c.Close()
				in = c
			} else {
				in = &scanReader{sc: bufio.NewScanner(cmd.InOrStdin())}
			}

			s := &chatSession{
				cache:  cache,
				in:     in,
				out:    cmd.OutOrStdout(),
				model:  modelName,
				system: system,
			}
			return s.run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&remote, "remote", "", "base URL of a running chatkeep service")
	f.StringVarP(&modelName, "model", "m", "", "model recorded on new conversations")
	f.StringVar(&system, "system", DefaultSystemPrompt, "system prompt for new conversations")
	return cmd
}

// =============================================================================
// SESSION
// =============================================================================

// errQuit ends the session loop.
var errQuit = errors.New("quit")

type chatSession struct {
	cache  *chatcache.Cache
	in     lineReader
	out    io.Writer
	model  string
	system string
}

func (s *chatSession) run(ctx context.Context) error {
	fmt.Fprintln(s.out, TitleStyle.Render("chatkeep chat"))
	fmt.Fprintf(s.out, "%d conversation(s) loaded. Type /help for commands.\n", s.cache.Len())

	for {
		input, err := s.in.Prompt(s.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D, and end of input all end the session.
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if err := s.handle(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintln(s.out, ErrorStyle.Render("[Error]"), err)
		}
	}
	return s.cache.Flush(ctx)
}

func (s *chatSession) prompt() string {
	if conv, ok := s.cache.Current(); ok {
		return util.TruncateWidth(conv.Title, 24) + "> "
	}
	return "chatkeep> "
}

func (s *chatSession) handle(ctx context.Context, input string) error {
	if !strings.HasPrefix(input, "/") {
		s.say(model.NewUserMessage(input))
		return nil
	}

	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return errQuit
	case "/help", "/h", "/?":
		s.help()
	case "/new":
		system := s.system
		if arg != "" {
			system = arg
		}
		conv := s.cache.Create(model.NewSystemMessage(system), s.model)
		fmt.Fprintln(s.out, DimStyle.Render("Started "+conv.ID))
	case "/reply", "/r":
		if arg == "" {
			return errors.New("usage: /reply <text>")
		}
		if _, ok := s.cache.Current(); !ok {
			return errors.New("no conversation selected")
		}
		s.say(model.NewAssistantMessage(arg))
	case "/list", "/ls":
		s.list()
	case "/switch", "/s":
		conv, err := s.pick(arg)
		if err != nil {
			return err
		}
		if err := s.cache.SetCurrent(conv.ID); err != nil {
			return err
		}
		fmt.Fprintln(s.out, DimStyle.Render("Switched to "+conv.Title))
	case "/show":
		conv, ok := s.cache.Current()
		if !ok {
			return errors.New("no conversation selected")
		}
		s.show(conv)
	case "/delete", "/rm":
		conv, ok := s.cache.Current()
		if arg != "" {
			picked, err := s.pick(arg)
			if err != nil {
				return err
			}
			conv, ok = picked, true
		}
		if !ok {
			return errors.New("no conversation selected")
		}
		if err := s.cache.Delete(ctx, conv.ID); err != nil {
			return fmt.Errorf("removed from the list but not from storage (use /retry): %w", err)
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("Deleted"), conv.Title)
	case "/retry":
		return s.retry(ctx)
	case "/clear":
		answer, err := s.in.Prompt("Delete all conversations? [y/N]: ")
		if err != nil {
			return err
		}
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			ShowCancellationMessage(s.out)
			return nil
		}
		if err := s.cache.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("Cleared"))
	default:
		return fmt.Errorf("unknown command %s (type /help)", name)
	}
	return nil
}

// say appends msg to the current conversation, starting one when none is
// selected.
func (s *chatSession) say(msg model.Message) {
	conv, ok := s.cache.Current()
	if !ok {
		conv = s.cache.Create(model.NewSystemMessage(s.system), s.model)
	}
	s.cache.Append(conv.ID, msg)
}

// pick resolves a 1-based position from /list.
func (s *chatSession) pick(arg string) (*model.Conversation, error) {
	convs := s.cache.Conversations()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(convs) {
		return nil, fmt.Errorf("expected a number between 1 and %d", len(convs))
	}
	return convs[n-1], nil
}

func (s *chatSession) list() {
	convs := s.cache.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("No conversations."))
		return
	}
	current, _ := s.cache.Current()
	for i, c := range convs {
		marker := "  "
		if current != nil && c.ID == current.ID {
			marker = "* "
		}
		fmt.Fprintf(s.out, "%s%2d. %s %s\n", marker, i+1,
			util.PadRight(util.TruncateWidth(c.Title, 40), 40),
			DimStyle.Render(fmt.Sprintf("%d msgs", c.MessageCount())))
	}
}

func (s *chatSession) show(conv *model.Conversation) {
	fmt.Fprintln(s.out, SectionStyle.Render(conv.Title))
	for _, m := range conv.Messages {
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintln(s.out, UserStyle.Render(m.Role.DisplayName()+":"), m.Content)
		case model.RoleAssistant:
			fmt.Fprintln(s.out, AssistantStyle.Render(m.Role.DisplayName()+":"), m.Content)
		default:
			fmt.Fprintln(s.out, DimStyle.Render(m.Role.DisplayName()+": "+m.Content))
		}
	}
}

func (s *chatSession) retry(ctx context.Context) error {
	failed := s.cache.FailedDeletes()
	if len(failed) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("Nothing to retry."))
		return nil
	}
	var errs []error
	for _, f := range failed {
		if err := s.cache.RetryDelete(ctx, f.Conversation.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("Deleted"), f.Filename)
	}
	return errors.Join(errs...)
}

func (s *chatSession) help() {
	fmt.Fprint(s.out, `Commands:
  /new [system prompt]  Start a conversation
  /reply <text>         Record an assistant reply
  /list                 List conversations
  /switch <n>           Select conversation n
  /show                 Print the current conversation
  /delete [n]           Delete the current or the nth conversation
  /retry                Retry deletes that failed
  /clear                Delete every conversation
  /quit                 Exit
`)
}
