package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	transports "github.com/rzbill/relay/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// newPublishCommand constructs the `publish` subcommand.
func newPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish [text]",
		Short: "Publish one message over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			data, _ := cmd.Flags().GetString("data")
			if len(args) == 1 {
				if data != "" {
					return errors.New("pass the message as an argument or --data, not both")
				}
				data = args[0]
			}
			if data == "" {
				return errors.New("message is required")
			}
			if err := httpTransport(baseURL).Publish(cmd.Context(), topic, []byte(data)); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	publishCmd.Flags().String("topic", "", "Topic (server default when empty)")
	publishCmd.Flags().String("data", "", "Message body")
	return publishCmd
}

// newSubscribeCommand constructs the `subscribe` subcommand.
func newSubscribeCommand(baseURL BaseURLFunc) *cobra.Command {
	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Tail a topic over SSE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			raw, _ := cmd.Flags().GetBool("raw")

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			return httpTransport(baseURL).Subscribe(cmd.Context(), transports.SubscribeRequest{
				Topic:  topic,
				Filter: filter,
				Limit:  limit,
			}, func(data []byte) error {
				if raw {
					_, err := fmt.Fprintln(out, string(data))
					return err
				}
				return enc.Encode(decodedMessage(data))
			})
		},
	}
	subscribeCmd.Flags().String("topic", "", "Topic (server default when empty)")
	subscribeCmd.Flags().String("filter", "", "CEL filter (server-side)")
	subscribeCmd.Flags().Int("limit", 0, "Stop after N messages (0 = infinite)")
	subscribeCmd.Flags().Bool("raw", false, "Print payloads verbatim")
	return subscribeCmd
}

// newStreamCommand constructs the `stream` subcommand. Each input line
// becomes one message; fan-out frames are printed as they arrive and the
// closing summary is printed last.
func newStreamCommand() *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Open a bidirectional gRPC stream fed from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			quiet, _ := cmd.Flags().GetBool("quiet")

			in := make(chan []byte)
			readErr := make(chan error, 1)
			go func() {
				defer close(in)
				readErr <- readLines(cmd.Context(), cmd.InOrStdin(), in)
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			var onData func([]byte) error
			if !quiet {
				onData = func(data []byte) error { return enc.Encode(decodedMessage(data)) }
			}
			t := transports.NewGrpcTransport(dialGRPCContext)
			summary, err := t.Stream(cmd.Context(), in, onData)
			if err != nil {
				return err
			}
			select {
			case rerr := <-readErr:
				if rerr != nil {
					return rerr
				}
			default:
			}
			if err := enc.Encode(summary); err != nil {
				return err
			}
			if !summary.Success {
				return fmt.Errorf("stream failed: %s", summary.Message)
			}
			return nil
		},
	}
	streamCmd.Flags().Bool("quiet", false, "Do not print fan-out messages")
	return streamCmd
}

func readLines(ctx context.Context, r io.Reader, out chan<- []byte) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		select {
		case out <- []byte(line):
		case <-ctx.Done():
			return nil
		}
	}
	return sc.Err()
}
