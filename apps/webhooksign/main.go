// Command webhooksign signs a webhook payload the way the processor does and
// prints the Stripe-Signature header. With --url it also delivers the payload.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/checkout/internal/payment/adapters/stripe"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const deliveryTimeout = 10 * time.Second

type options struct {
	secret    string
	file      string
	timestamp int64
	url       string
}

func main() {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(os.Args[1:], os.Stdout, http.DefaultClient); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error("webhooksign failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	flags := pflag.NewFlagSet("webhooksign", pflag.ContinueOnError)
	flags.String("secret", "", "webhook signing secret (default $STRIPE_WEBHOOK_SECRET)")
	flags.StringP("file", "f", "", "payload file, - for stdin")
	flags.Int64("timestamp", 0, "unix timestamp to sign with (default now)")
	flags.String("url", "", "deliver the signed payload to this webhook URL")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return options{}, err
	}
	if err := v.BindEnv("secret", "STRIPE_WEBHOOK_SECRET"); err != nil {
		return options{}, err
	}

	opts := options{
		secret:    strings.TrimSpace(v.GetString("secret")),
		file:      strings.TrimSpace(v.GetString("file")),
		timestamp: v.GetInt64("timestamp"),
		url:       strings.TrimSpace(v.GetString("url")),
	}
	if opts.secret == "" {
		return options{}, errors.New("a signing secret is required (--secret or STRIPE_WEBHOOK_SECRET)")
	}
	if opts.file == "" {
		return options{}, errors.New("--file is required")
	}
	return opts, nil
}

func run(args []string, out io.Writer, client *http.Client) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	payload, err := readPayload(opts.file)
	if err != nil {
		return err
	}

	signedAt := time.Now()
	if opts.timestamp > 0 {
		signedAt = time.Unix(opts.timestamp, 0)
	}
	header := stripe.SignPayload(opts.secret, payload, signedAt)

	if opts.url == "" {
		_, err = fmt.Fprintf(out, "%s: %s\n", stripe.SignatureHeader, header)
		return err
	}
	return deliver(client, opts.url, payload, header, out)
}

func readPayload(file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(os.Stdin)
	}
	payload, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

func deliver(client *http.Client, url string, payload []byte, header string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(stripe.SignatureHeader, header)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	return err
}
