// Command send-event signs a user.created event the way the webhook
// gateway does and posts it to a running provisioner.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/Priya8975/userdb-provisioner/internal/webhook"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type options struct {
	url       string
	secret    string
	eventType string
	clientIP  string
	msgID     string
	skew      time.Duration
	timeout   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()

	var opts options

	cmd := &cobra.Command{
		Use:   "send-event <user-id>",
		Short: "Sign and deliver a user event to the provisioner",
		Long: `Builds a user event, signs it with the webhook secret and POSTs it to
the provisioner. Reusing --id replays the same delivery.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080/webhooks/user-created", "provisioner webhook URL")
	cmd.Flags().StringVar(&opts.secret, "secret", os.Getenv("WEBHOOK_SECRET"), "signing secret (defaults to $WEBHOOK_SECRET)")
	cmd.Flags().StringVar(&opts.eventType, "type", domain.EventTypeUserCreated, "event type")
	cmd.Flags().StringVar(&opts.clientIP, "client-ip", "", "client IP to send as a region hint")
	cmd.Flags().StringVar(&opts.msgID, "id", "", "delivery id (random when empty)")
	cmd.Flags().DurationVar(&opts.skew, "skew", 0, "shift the signed timestamp, e.g. -10m to test replay rejection")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	return cmd
}

func buildEvent(userID string, opts options) ([]byte, error) {
	event := domain.InboundEvent{
		Type: opts.eventType,
		Data: domain.EventData{ID: userID},
	}
	if opts.clientIP != "" {
		event.Attributes = &domain.EventAttributes{ClientIP: opts.clientIP}
	}
	return json.Marshal(event)
}

func run(cmd *cobra.Command, userID string, opts options) error {
	if opts.secret == "" {
		return fmt.Errorf("a signing secret is required (--secret or WEBHOOK_SECRET)")
	}
	if opts.msgID == "" {
		opts.msgID = "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	body, err := buildEvent(userID, opts)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	headers, err := webhook.Sign(opts.msgID, time.Now().Add(opts.skew), body, opts.secret)
	if err != nil {
		return fmt.Errorf("signing event: %w", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.url, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering event: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "delivery %s -> %s\n", opts.msgID, resp.Status)
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		fmt.Fprintf(out, "retry after %ss\n", ra)
	}
	fmt.Fprintln(out, strings.TrimSpace(string(respBody)))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provisioner answered %d", resp.StatusCode)
	}
	return nil
}
