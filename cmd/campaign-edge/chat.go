package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sofatutor/campaign-edge/internal/client"
	"github.com/sofatutor/campaign-edge/internal/config"
)

// chatFlags holds the chat command flags.
type chatFlags struct {
	proxyURL     string
	token        string
	systemPrompt string
	message      string
	verbose      bool
}

func newChatCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant through the chat proxy",
		Long: `Start an interactive chat session against the chat proxy, or send a
single message with --message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewChatClient(f.proxyURL, f.token)
			opts := client.ChatOptions{SystemPrompt: f.systemPrompt}
			if f.verbose {
				opts.Verbose = cmd.ErrOrStderr()
			}
			if f.message != "" {
				return sendOnce(cmd, c, f.message, opts)
			}
			return runChatREPL(cmd, c, opts)
		},
	}
	cmd.Flags().StringVar(&f.proxyURL, "proxy", config.EnvOrDefault("EDGE_URL", "http://localhost:8080"), "Edge proxy URL")
	cmd.Flags().StringVar(&f.token, "token", config.EnvOrDefault("EDGE_USER_TOKEN", ""), "User access token (anonymous when empty)")
	cmd.Flags().StringVar(&f.systemPrompt, "system", "", "System prompt")
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "Send one message and exit")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print raw request and response bodies")
	return cmd
}

func sendOnce(cmd *cobra.Command, c *client.ChatClient, message string, opts client.ChatOptions) error {
	resp, err := c.Send(cmd.Context(), message, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
	return nil
}

// runChatREPL reads messages with readline until exit, quit or EOF. Each
// message is sent on its own; the proxy keeps no conversation state.
func runChatREPL(cmd *cobra.Command, c *client.ChatClient, opts client.ChatOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Starting chat session with", c.BaseURL)
	if opts.SystemPrompt != "" {
		fmt.Fprintln(out, "System prompt:", opts.SystemPrompt)
	}
	fmt.Fprintln(out, "Type 'exit' or 'quit' to end the session")
	fmt.Fprintln(out)

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "> ",
		Stdin:  io.NopCloser(cmd.InOrStdin()),
		Stdout: out,
	})
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		input, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(input) == 0 {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "exit" || input == "quit" {
			break
		}
		if input == "" {
			continue
		}

		resp, err := c.Send(cmd.Context(), input, opts)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, resp.Response)
	}
	fmt.Fprintln(out, "Ending chat session")
	return nil
}
