package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/kolson/planner/backend/internal/logger"
	"github.com/kolson/planner/backend/pkg/plannerclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Logger.Debug("no .env file, using system environment", "err", err)
	}

	defaultURL := os.Getenv("PLANNER_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	baseURL := flag.String("url", defaultURL, "planner API base URL")
	tokenPath := flag.String("token", defaultTokenPath(), "file holding the visitor token")
	stateless := flag.Bool("stateless", false, "chat without a session")
	delay := flag.Duration("refresh", plannerclient.DefaultRefreshDelay, "delay before refreshing the brief")
	flag.Parse()

	log := logger.For("plannerchat")

	visitorID, err := loadVisitorToken(*tokenPath)
	if err != nil {
		log.Fatal("visitor token unavailable", "path", *tokenPath, "err", err)
	}

	client := plannerclient.New(*baseURL, visitorID)
	client.RefreshDelay = *delay
	client.OnBrief = func(u plannerclient.BriefUpdate) {
		if u.Err != nil {
			log.Warn("brief refresh failed", "err", u.Err)
			return
		}
		printBrief(u.Brief, u.Completeness)
	}
	defer client.Close()

	ctx := context.Background()
	if !*stateless {
		history, b, err := client.Start(ctx)
		if err != nil {
			log.Fatal("failed to start session", "err", err)
		}
		for _, msg := range history {
			fmt.Printf("%s> %s\n", msg.Role, msg.Content)
		}
		printBrief(b, nil)
	}

	fmt.Println("Type a message. Commands: /brief, /share <email> [name], /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/brief":
			b, score, err := client.Brief(ctx)
			if err != nil {
				log.Warn("brief unavailable", "err", err)
				continue
			}
			printBrief(b, score)
		case strings.HasPrefix(line, "/share"):
			parts := strings.Fields(line)
			if len(parts) < 2 {
				fmt.Println("usage: /share <email> [name]")
				continue
			}
			name := strings.Join(parts[2:], " ")
			shareID, err := client.Share(ctx, parts[1], name)
			if err != nil {
				log.Warn("share failed", "err", err)
				continue
			}
			fmt.Printf("shared, public id %s\n", shareID)
		default:
			sendCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
			reply, err := client.Send(sendCtx, line)
			cancel()
			var apiErr *plannerclient.APIError
			switch {
			case errors.As(err, &apiErr) && apiErr.UserMessage != "":
				fmt.Printf("assistant> %s\n", apiErr.UserMessage)
				log.Debug("chat failed", "status", apiErr.Status, "err", apiErr.Message)
			case err != nil:
				log.Warn("chat failed", "err", err)
			default:
				fmt.Printf("assistant> %s\n", reply)
			}
		}
	}
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".planner-visitor"
	}
	return filepath.Join(dir, "planner", "visitor")
}

// loadVisitorToken reads the token at path, creating one on first use.
func loadVisitorToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	token := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	return token, nil
}

func printBrief(b *plannerclient.Brief, score *plannerclient.Completeness) {
	if b == nil {
		return
	}
	fmt.Printf("-- brief [%s]", b.Status)
	if score != nil {
		fmt.Printf(" %d%%", score.Score)
	}
	fmt.Println()
	if b.Summary != nil {
		fmt.Printf("   summary: %s\n", *b.Summary)
	}
	if len(b.Goals) > 0 {
		fmt.Printf("   goals: %s\n", strings.Join(b.Goals, "; "))
	}
	if len(b.Features) > 0 {
		fmt.Printf("   features: %s\n", strings.Join(b.Features, "; "))
	}
	details := []struct {
		label string
		val   *string
	}{
		{"audience", b.TargetAudience},
		{"industry", b.Industry},
		{"timeline", b.Timeline},
		{"budget", b.BudgetSignals},
		{"tech", b.TechPreferences},
	}
	for _, d := range details {
		if d.val != nil {
			fmt.Printf("   %s: %s\n", d.label, *d.val)
		}
	}
	if score != nil && score.NextHint != "" {
		fmt.Printf("   next: %s\n", score.NextHint)
	}
}
