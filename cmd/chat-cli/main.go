// Command chat-cli is an interactive terminal client for one project's chat
// sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/zarkopopovski/persona-chat/chatclient"
	"github.com/zarkopopovski/persona-chat/governor"
	"github.com/zarkopopovski/persona-chat/models"
)

const helpText = `Commands:
  /sessions        list chat sessions (* marks the active one)
  /new             start a new chat session
  /select <n>      switch to session number n
  /delete <n>      delete session number n
  /history         print the active transcript
  /login <token>   sign in with an access token
  /logout          sign out
  /quit            exit
Anything else is sent as a message.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	apiURL := os.Getenv("CHAT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	projectID := os.Getenv("CHAT_PROJECT_ID")
	if projectID == "" {
		return errors.New("CHAT_PROJECT_ID is required")
	}

	identity := chatclient.NewIdentityHolder(os.Getenv("CHAT_TOKEN"))

	controller := chatclient.NewController(chatclient.ControllerConfig{
		ProjectID: projectID,
		API:       chatclient.NewClient(apiURL, identity),
		Identity:  identity,
		Governor:  governor.Config{},
		Notifier:  printNotice,
	})
	defer controller.Close()

	ctx := context.Background()

	if identity.Current().SignedIn() {
		if err := controller.Load(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	} else {
		fmt.Println("Not signed in. Use /login <token>.")
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println(helpText)
	printActive(controller)

	for {
		input, err := line.Prompt("chat> ")
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal all end the session.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := handleCommand(ctx, controller, identity, input); quit {
				return nil
			}
			continue
		}

		controller.SetInput(input)
		if err := controller.Send(ctx); err != nil {
			var limited *governor.RateLimitedError
			if !errors.As(err, &limited) {
				fmt.Fprintln(os.Stderr, err)
			}
			continue
		}

		transcript := controller.Transcript()
		if n := len(transcript); n > 0 && transcript[n-1].Role == models.RoleAssistant {
			fmt.Printf("assistant> %s\n", transcript[n-1].Content)
		}
		if remaining := controller.RemainingQuota(); remaining <= 3 {
			fmt.Printf("Messages remaining: %d\n", remaining)
		}
	}
}

func handleCommand(ctx context.Context, controller *chatclient.Controller, identity *chatclient.IdentityHolder, input string) bool {
	fields := strings.Fields(input)

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(helpText)
	case "/sessions":
		printSessions(controller)
	case "/new":
		if _, err := controller.CreateSession(ctx); err == nil {
			printActive(controller)
		}
	case "/select", "/delete":
		chatSession, err := sessionAt(controller, fields)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		if fields[0] == "/select" {
			err = controller.SelectSession(ctx, chatSession.ID)
		} else {
			err = controller.DeleteSession(ctx, chatSession.ID)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		printActive(controller)
	case "/history":
		for _, message := range controller.Transcript() {
			fmt.Printf("%s> %s\n", message.Role, message.Content)
		}
	case "/login":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: /login <token>")
			return false
		}
		identity.SignIn(fields[1])
		if err := controller.Load(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		printActive(controller)
	case "/logout":
		identity.SignOut()
		fmt.Println("Signed out.")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", fields[0])
	}
	return false
}

func sessionAt(controller *chatclient.Controller, fields []string) (models.ChatSession, error) {
	if len(fields) != 2 {
		return models.ChatSession{}, fmt.Errorf("usage: %s <n>", fields[0])
	}

	n, err := strconv.Atoi(fields[1])
	sessions := controller.Sessions()
	if err != nil || n < 1 || n > len(sessions) {
		return models.ChatSession{}, fmt.Errorf("no session number %s", fields[1])
	}
	return sessions[n-1], nil
}

func printSessions(controller *chatclient.Controller) {
	active, _ := controller.ActiveSession()
	for i, chatSession := range controller.Sessions() {
		marker := " "
		if chatSession.ID == active.ID {
			marker = "*"
		}
		fmt.Printf("%s %d. %s\n", marker, i+1, chatSession.Name)
	}
}

func printActive(controller *chatclient.Controller) {
	if active, ok := controller.ActiveSession(); ok {
		fmt.Printf("Active session: %s\n", active.Name)
	}
}

func printNotice(notice chatclient.Notice) {
	out := os.Stdout
	if notice.Level == chatclient.LevelError {
		out = os.Stderr
	}
	fmt.Fprintf(out, "[%s] %s\n", notice.Title, notice.Description)
}
