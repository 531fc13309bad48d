// Command peerctl sends a query to relay nodes over RabbitMQ and prints
// their replies. The nodes only answer if the --as id is one of their
// configured masters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"croesus/internal/config"
	"croesus/internal/coordinator"
	"croesus/internal/rabbitmq"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to Croesus.toml (default: search path)")
	self := pflag.String("as", "peerctl", "node id to send as")
	nodes := pflag.StringSlice("node", nil, "node ids to query (default: node.peers from the config)")
	sender := pflag.String("sender", "peerctl", "user the query is asked on behalf of")
	raw := pflag.Bool("raw", false, "send the arguments verbatim as one line and print everything that comes back")
	wait := pflag.Duration("wait", 5*time.Second, "how long to wait for replies")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: peerctl [flags] <command> [args...]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	targets := *nodes
	if len(targets) == 0 {
		targets = cfg.Node.Peers
	}
	if len(targets) == 0 {
		log.Fatal().Msg("No nodes to query: pass --node or set node.peers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	tr, err := rabbitmq.NewTransport(ctx, client, cfg.RabbitMQ.ExchangeName, cfg.RabbitMQ.QueuePrefix, *self, targets, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up transport")
	}

	var code int
	if *raw {
		code = sendRaw(ctx, tr, targets, strings.Join(pflag.Args(), " "), *wait)
	} else {
		code = query(ctx, tr, targets, *sender, pflag.Args(), *wait)
	}
	tr.Close()
	stop()
	os.Exit(code)
}

// query fans words out like a master would and prints each node's reply
func query(ctx context.Context, tr *rabbitmq.Transport, targets []string, sender string, words []string, wait time.Duration) int {
	coord := coordinator.New(tr, coordinator.Options{
		Peers:   targets,
		Timeout: wait,
	})

	done := make(chan coordinator.Result, 1)
	id, err := coord.Dispatch(ctx, sender, sender, words, func(res coordinator.Result) {
		done <- res
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send query")
		return 1
	}
	log.Info().Str("query", id).Strs("nodes", targets).Msg("Query sent")

	for {
		select {
		case <-ctx.Done():
			return 1
		case res := <-done:
			for _, peer := range res.Order {
				fmt.Printf("%s: %s\n", peer, res.Responses[peer])
			}
			if res.TimedOut {
				fmt.Fprintf(os.Stderr, "no reply from: %s\n", strings.Join(res.Missing, ", "))
				return 1
			}
			return 0
		case m, ok := <-tr.Messages():
			if !ok {
				return 1
			}
			if !coord.HandleMessage(ctx, m.Sender, m.Text) {
				fmt.Printf("%s (not a reply): %s\n", m.Sender, m.Text)
			}
		}
	}
}

func sendRaw(ctx context.Context, tr *rabbitmq.Transport, targets []string, line string, wait time.Duration) int {
	for _, node := range targets {
		if err := tr.SendToPeer(ctx, node, line); err != nil {
			log.Error().Err(err).Str("node", node).Msg("Failed to send")
			return 1
		}
	}

	timeout := time.After(wait)
	for {
		select {
		case <-ctx.Done():
			return 1
		case <-timeout:
			return 0
		case m, ok := <-tr.Messages():
			if !ok {
				return 0
			}
			fmt.Printf("%s -> %s: %s\n", m.Sender, m.Destination, m.Text)
		}
	}
}
