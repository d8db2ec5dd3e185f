package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopherchat/internal/client"
	"gopherchat/internal/logger"
)

const usage = `usage: chatcli [flags] <command> [args]

commands:
  register <name> <email> <password>
  login <email> <password>
  logout
  me
  chats
  new [title]
  show <chat-id>
  delete <chat-id>
  send [-chat <chat-id>] <message...>
  repl [chat-id]
`

func main() {
	server := flag.String("server", envOr("GOPHERCHAT_SERVER", "http://localhost:3000"), "API base URL")
	tokenFile := flag.String("token-file", defaultTokenFile(), "where session tokens are kept")
	debug := flag.Bool("debug", false, "log client activity to stderr")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	opts := []client.Option{client.WithTokenStore(client.NewFileTokenStore(*tokenFile))}
	if *debug {
		log, err := logger.New(false)
		if err == nil {
			defer func() { _ = log.Sync() }()
			opts = append(opts, client.WithLogger(log))
		}
	}
	c := client.New(*server, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, client.ErrSessionExpired) || errors.Is(err, client.ErrNotLoggedIn) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) != 3 {
			return errors.New("register needs <name> <email> <password>")
		}
		id, err := c.Register(ctx, client.RegisterRequest{
			Name:            args[0],
			Email:           args[1],
			Password:        args[2],
			ConfirmPassword: args[2],
		})
		if err != nil {
			return err
		}
		fmt.Println("registered", id)
	case "login":
		if len(args) != 2 {
			return errors.New("login needs <email> <password>")
		}
		user, err := c.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s <%s>\n", user.Name, user.Email)
	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s <%s>\tadmin=%t\n", user.ID, user.Name, user.Email, user.Admin)
	case "chats":
		chats, err := c.MyChats(ctx)
		if err != nil {
			return err
		}
		for _, chat := range chats {
			last := ""
			if chat.LastMessage != nil {
				last = preview(chat.LastMessage.Content, 40)
			}
			fmt.Printf("%s\t%s\t%s\n", chat.ID, chat.Title, last)
		}
	case "new":
		chat, err := c.CreateChat(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(chat.ID, chat.Title)
	case "show":
		if len(args) != 1 {
			return errors.New("show needs <chat-id>")
		}
		chat, err := c.GetChat(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n", chat.Title)
		for _, m := range chat.Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	case "delete":
		if len(args) != 1 {
			return errors.New("delete needs <chat-id>")
		}
		if _, err := c.DeleteChat(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
	case "send":
		fs := flag.NewFlagSet("send", flag.ContinueOnError)
		chatID := fs.String("chat", "", "existing chat id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		content := strings.Join(fs.Args(), " ")
		if content == "" {
			return errors.New("send needs a message")
		}
		result, err := c.SendMessage(ctx, *chatID, content)
		if err != nil {
			return err
		}
		fmt.Printf("chat %s\n%s\n", result.ChatID, result.AssistantMessage.Content)
	case "repl":
		chatID := ""
		if len(args) > 0 {
			chatID = args[0]
		}
		return repl(ctx, c, chatID)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func repl(ctx context.Context, c *client.Client, chatID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		result, err := c.SendMessage(ctx, chatID, line)
		if err != nil {
			return err
		}
		chatID = result.ChatID
		fmt.Println(result.AssistantMessage.Content)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func preview(s string, n int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gopherchat-tokens.json"
	}
	return filepath.Join(dir, "gopherchat", "tokens.json")
}
