package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wolfman30/chat-widget-relay/internal/chatclient"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

const errorContactingServer = "Error contacting server"

type clientConfig struct {
	RelayURL  string        `env:"CHAT_RELAY_URL" envDefault:"http://localhost:8080"`
	RelayPath string        `env:"CHAT_RELAY_PATH" envDefault:"/api/chat"`
	Timeout   time.Duration `env:"CHAT_TIMEOUT" envDefault:"90s"`
	LogLevel  string        `env:"CHAT_LOG_LEVEL" envDefault:"error"`
}

// sender is the part of the chat client the commands need.
type sender interface {
	SendChat(ctx context.Context, text string) (string, error)
}

type options struct {
	relayURL  string
	relayPath string
	timeout   time.Duration
	verbose   bool

	// newSender is swapped in tests.
	newSender func(clientConfig) sender
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{newSender: defaultSender})
}

func buildRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the chat widget relay from a terminal",
		Long: `chat sends messages to a chat widget relay, one exchange per message.

Configuration is read from CHAT_RELAY_URL, CHAT_RELAY_PATH, CHAT_TIMEOUT and
CHAT_LOG_LEVEL. Flags override the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.relayURL, "url", "u", "", "relay base URL (env CHAT_RELAY_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.relayPath, "path", "", "relay path (env CHAT_RELAY_PATH)")
	rootCmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", 0, "per-message timeout (env CHAT_TIMEOUT)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each exchange to stderr")

	rootCmd.AddCommand(newAskCmd(opts), newReplCmd(opts))
	return rootCmd
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.sender(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("chat: message is empty")
			}

			reply, err := client.SendChat(cmd.Context(), text)
			if err != nil {
				printWarning(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func newReplCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read messages line by line and print each reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.sender(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return repl(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// repl sends one line at a time and waits for its reply before reading the
// next, so at most one exchange is in flight.
func repl(ctx context.Context, client sender, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, err := client.SendChat(ctx, text)
		if err != nil {
			printWarning(out, err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

func printWarning(w io.Writer, err error) {
	msg := errorContactingServer
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	color.New(color.FgYellow).Fprintf(w, "⚠️ %s\n", msg)
}

// sender resolves the config and wraps the client so every exchange is
// logged to logOut.
func (o *options) sender(logOut io.Writer) (sender, error) {
	cfg := clientConfig{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("chat: parsing env config: %w", err)
	}
	if o.relayURL != "" {
		cfg.RelayURL = o.relayURL
	}
	if o.relayPath != "" {
		cfg.RelayPath = o.relayPath
	}
	if o.timeout > 0 {
		cfg.Timeout = o.timeout
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewWithWriter(cfg.LogLevel, "text", logOut).With("relay", cfg.RelayURL+cfg.RelayPath)
	return &loggedSender{next: o.newSender(cfg), logger: logger}, nil
}

type loggedSender struct {
	next   sender
	logger *logging.Logger
}

func (s *loggedSender) SendChat(ctx context.Context, text string) (string, error) {
	start := time.Now()
	s.logger.Debug("chat exchange started", "chars", len(text))

	reply, err := s.next.SendChat(ctx, text)
	elapsed := time.Since(start)
	if err != nil {
		var reqErr *chatclient.RequestError
		if errors.As(err, &reqErr) {
			s.logger.Warn("chat exchange failed", "status", reqErr.Status, "error", reqErr.Message, "duration_ms", elapsed.Milliseconds())
		} else {
			s.logger.Warn("chat exchange failed", "error", err, "duration_ms", elapsed.Milliseconds())
		}
		return "", err
	}
	s.logger.Debug("chat exchange completed", "reply_chars", len(reply), "duration_ms", elapsed.Milliseconds())
	return reply, nil
}

func defaultSender(cfg clientConfig) sender {
	return chatclient.New(cfg.RelayURL,
		chatclient.WithPath(cfg.RelayPath),
		chatclient.WithTimeout(cfg.Timeout),
	)
}
