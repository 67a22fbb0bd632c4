// Package main is a one-shot CLI: analyze the given tokens and print the
// verdicts, then exit. Useful for spot checks without running the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"solana-safety-engine/internal/aggregator"
	"solana-safety-engine/internal/chain"
	"solana-safety-engine/internal/config"
	"solana-safety-engine/internal/domain"
)

func main() {
	jsonOut := flag.Bool("json", false, "Print verdicts as JSON instead of text")
	honeypotOnly := flag.Bool("honeypot-only", false, "Run only the honeypot detector")
	timeout := flag.Duration("timeout", 2*time.Minute, "Total analysis deadline")
	flag.Parse()

	tokens := flag.Args()
	if len(tokens) == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyze [flags] <token-mint> [token-mint...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "[analyze] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	provider := chain.Instrument(chain.NewClient(cfg.RPCURL,
		chain.WithAPIKey(cfg.RPCAPIKey),
		chain.WithTimeout(cfg.RPCTimeout),
		chain.WithMaxRetries(cfg.RPCRetries),
		chain.WithQuoteURL(cfg.QuoteURL),
		chain.WithMarketURL(cfg.MarketURL),
	))
	agg := aggregator.NewFromProvider(provider, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Exit non-zero when any token errors out or comes back critical, so
	// the binary composes with shell pipelines.
	failed := false
	for _, token := range tokens {
		if *honeypotOnly {
			verdict, err := agg.Honeypot().Detect(ctx, token)
			if err != nil {
				logger.Printf("%s: %v", token, err)
				failed = true
				continue
			}
			if verdict.IsHoneypot {
				failed = true
			}
			if *jsonOut {
				printJSON(verdict)
			} else {
				fmt.Print(agg.Honeypot().FormatVerdict(verdict))
			}
			continue
		}

		verdict, err := agg.AnalyzeFull(ctx, token)
		if err != nil {
			logger.Printf("%s: %v", token, err)
			failed = true
			continue
		}
		if verdict.OverallRisk == domain.OverallCritical {
			failed = true
		}
		if *jsonOut {
			printJSON(verdict)
		} else {
			fmt.Print(agg.FormatVerdict(verdict))
		}
	}

	if failed {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
