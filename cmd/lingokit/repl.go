package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lingokit/lingokit/internal/tutor"
)

type ReplFlags struct {
	ServerURL string
	UserID    string
}

func NewReplFlags() *ReplFlags {
	return &ReplFlags{ServerURL: "http://localhost:8080"}
}

func (f *ReplFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ServerURL, "server", f.ServerURL, "Base URL of a running lingokit server")
	flagSet.StringVar(&f.UserID, "user", "", "User id for the session (default: anonymous)")
}

func NewReplCommand() *cobra.Command {
	f := NewReplFlags()

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Chat with a running lingokit server from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(f)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func runRepl(f *ReplFlags) error {
	client := &replClient{
		base: strings.TrimRight(f.ServerURL, "/"),
		hc:   &http.Client{Timeout: 2 * time.Minute},
	}

	sessionID, err := client.createSession(f.UserID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Printf("Session %s started. Type /end (or Ctrl-D) to finish.\n\n", sessionID)

	prompt := liner.NewLiner()
	defer prompt.Close()
	prompt.SetCtrlCAborts(true)

	for {
		input, err := prompt.Prompt("you> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		prompt.AppendHistory(input)
		if input == "/end" {
			break
		}

		result, err := client.chat(sessionID, input)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("tutor> %s\n", result.Response)
		fmt.Printf("       [%s | %s | score %d]\n\n",
			result.DifficultyLevel, result.TeachingStrategy, result.ProficiencyScore)
	}

	if err := client.endSession(sessionID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	fmt.Println("Session ended. Goodbye!")
	return nil
}

type replClient struct {
	base string
	hc   *http.Client
}

func (c *replClient) post(path string, body, dst any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func (c *replClient) createSession(userID string) (string, error) {
	userData := map[string]any{}
	if userID != "" {
		userData["user_id"] = userID
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := c.post("/api/v1/session/create", map[string]any{"user_data": userData}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *replClient) chat(sessionID, message string) (*tutor.ChatResult, error) {
	var result tutor.ChatResult
	err := c.post("/api/v1/chat", map[string]string{
		"session_id": sessionID,
		"message":    message,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *replClient) endSession(sessionID string) error {
	return c.post("/api/v1/session/"+sessionID+"/end", map[string]any{}, nil)
}
