package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"chat-client/internal/api"
	"chat-client/internal/models"
	"chat-client/internal/services"
	"chat-client/internal/websocket"
	"chat-client/pkg/logger"

	"github.com/spf13/cobra"
)

func buildLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a session token for CHAT_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := api.NewClient(cfg.Server.APIURL, cfg.Server.HTTPTimeout)
			resp, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Logged in as %s (%s)\n", resp.User.FullName, resp.User.Email)
			fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func buildRoomsCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List the rooms you belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Session.Token
			}
			if token == "" {
				return websocket.ErrAuthMissing
			}

			client := api.NewClient(cfg.Server.APIURL, cfg.Server.HTTPTimeout)
			client.SetToken(token)
			rooms := services.NewRoomService(client, nil)
			summaries, err := rooms.Load(cmd.Context())
			if err != nil {
				return err
			}
			printRooms(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Session token (default $CHAT_TOKEN)")
	return cmd
}

func buildConnectCmd() *cobra.Command {
	var (
		token    string
		email    string
		password string
		roomID   int64
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open the realtime connection and chat from the terminal",
		Long: `Open the realtime connection and chat from the terminal.

Lines typed on stdin are sent to the active room. Commands:
  /join <room>   switch to a room and load its history
  /leave         leave the active room
  /rooms         list rooms
  /status        show connection health
  /quit          exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runConnect(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout(), token, email, password, roomID)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Session token (default $CHAT_TOKEN)")
	cmd.Flags().StringVar(&email, "email", "", "Log in with this email instead of a token")
	cmd.Flags().StringVar(&password, "password", "", "Password for --email")
	cmd.Flags().Int64Var(&roomID, "room", 0, "Room to open on start")
	return cmd
}

func runConnect(ctx context.Context, a *app, in io.Reader, out io.Writer, token, email, password string, roomID int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.gate.OnStateChange(func(ev websocket.StateEvent) {
		switch {
		case ev.Delay > 0:
			fmt.Fprintf(out, "* %s, retrying in %s (attempt %d)\n", ev.New.Health(), ev.Delay, ev.Attempt)
		case ev.Old.Health() != ev.New.Health():
			fmt.Fprintf(out, "* %s\n", ev.New.Health())
		}
	})
	a.gate.OnAuthFailure(func(err error) {
		fmt.Fprintf(out, "* session rejected: %v\n", err)
		a.chat.Reset()
		cancel()
	})
	go a.gate.Run(ctx)
	go reportErrors(ctx, a, out)

	session, err := a.authenticate(ctx, token, email, password)
	if err != nil {
		return err
	}
	if session.User.Email != "" {
		fmt.Fprintf(out, "* logged in as %s\n", session.User.Email)
	}

	if _, err := a.chat.LoadRooms(ctx); err != nil {
		logger.Warn("Could not load rooms: %v", err)
	}

	printer := newMessagePrinter(out)
	go printer.follow(ctx, a)

	if roomID > 0 {
		if err := a.chat.SelectRoom(ctx, roomID); err != nil {
			fmt.Fprintf(out, "* %v\n", err)
		}
		printer.flush(a, roomID)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, a, printer, out, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one line of user input and reports whether the user asked to quit.
func handleLine(ctx context.Context, a *app, printer *messagePrinter, out io.Writer, line string) bool {
	cmd, arg := parseLine(line)
	switch cmd {
	case "":
		return false
	case "quit":
		return true
	case "status":
		fmt.Fprintf(out, "* %s\n", a.chat.ConnectionHealth())
	case "rooms":
		printRooms(out, a.chat.RoomSummaries())
	case "leave":
		if err := a.queue.LeaveActive(); err != nil {
			fmt.Fprintf(out, "* %v\n", err)
		}
	case "join":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(out, "* usage: /join <room id>\n")
			return false
		}
		if err := a.chat.SelectRoom(ctx, id); err != nil {
			fmt.Fprintf(out, "* %v\n", err)
		}
		printer.flush(a, id)
	case "say":
		active, ok := a.chat.ActiveRoom()
		if !ok {
			fmt.Fprintf(out, "* no active room, use /join <room id>\n")
			return false
		}
		if err := a.chat.SendMessage(active, arg); err != nil {
			if errors.Is(err, websocket.ErrNotConnected) {
				fmt.Fprintf(out, "* not connected, message not sent\n")
			} else {
				fmt.Fprintf(out, "* %v\n", err)
			}
		}
	default:
		fmt.Fprintf(out, "* unknown command /%s\n", cmd)
	}
	return false
}

// parseLine splits input into a command and its argument. Plain text is "say".
func parseLine(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	if !strings.HasPrefix(line, "/") {
		return "say", line
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func reportErrors(ctx context.Context, a *app, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-a.manager.Errors():
			var serverErr *websocket.ServerError
			switch {
			case errors.As(err, &serverErr):
				fmt.Fprintf(out, "* server: %s\n", serverErr.Content)
			case errors.Is(err, websocket.ErrNotConnected):
				// Already reported by the send path.
			default:
				fmt.Fprintf(out, "* connection: %v\n", err)
			}
		}
	}
}

func printRooms(out io.Writer, rooms []models.RoomSummary) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMEMBERS\tLAST MESSAGE")
	for _, r := range rooms {
		last := ""
		if r.LastMessage != nil {
			last = fmt.Sprintf("%s: %s", r.LastMessage.SenderDisplayName, truncate(r.LastMessage.Content, 40))
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", r.RoomID, r.Name, r.MemberCount, last)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
