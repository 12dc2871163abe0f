package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"streamhub/internal/core/domain"
	"streamhub/pkg/client"
	"streamhub/pkg/config"
	"streamhub/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile   string
	serverURL string
	token     string
	streamID  string
	logLevel  string
)

// rootCmd watches one stream room: it prints everything the room sends and
// posts every line typed on stdin as a chat message.
var rootCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a stream room and follow its chat from the terminal",
	Long: `watch connects to a streamhub signaling server, joins a stream room and
prints chat, presence and viewer updates as they arrive. Lines typed on
stdin are sent as chat. "/viewers" requests the viewer list and "/quit"
leaves.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.LoadFirst(configPaths()...)
		if err != nil {
			return err
		}
		if token == "" {
			token = os.Getenv("STREAMHUB_TOKEN")
		}
		if token == "" {
			return errors.New("a token is required (--token or STREAMHUB_TOKEN)")
		}

		ccfg := client.ConfigFrom(cfg, token)
		if serverURL != "" {
			ccfg.URL = serverURL
		}

		ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := logger.New(logLevel, "console").Sugar()
		return watch(ctx, ccfg, domain.StreamID(streamID), cmd.InOrStdin(), cmd.OutOrStdout(), log)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default configs/config.yaml)")
	rootCmd.Flags().StringVar(&serverURL, "url", "", "signaling websocket URL (overrides client.url)")
	rootCmd.Flags().StringVar(&token, "token", "", "access token")
	rootCmd.Flags().StringVarP(&streamID, "stream", "s", "", "stream id to join")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "client log level")
	_ = rootCmd.MarkFlagRequired("stream")
}

func configPaths() []string {
	if cfgFile != "" {
		return []string{cfgFile}
	}
	return []string{"configs/config.yaml", "config.yaml"}
}

func watch(ctx context.Context, cfg client.Config, room domain.StreamID, in io.Reader, out io.Writer, log *zap.SugaredLogger) error {
	c, err := client.New(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	p := newPrinter(out)
	p.attach(c)

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := c.JoinStream(room); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
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
			done, err := handleLine(c, room, line)
			if err != nil {
				p.errorf("%v", err)
			}
			if done {
				return c.LeaveStream(room)
			}
		}
	}
}

// handleLine sends one stdin line. It reports true when the user asked to
// leave.
func handleLine(c *client.Client, room domain.StreamID, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/viewers":
		return false, c.ListViewers(room)
	}
	return false, c.SendChat(room, line)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
