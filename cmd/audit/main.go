package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Hiepler/EuConform/pkg/client"
)

func main() {
	var (
		natsURL = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
		model   = flag.String("model", "", "Model to audit")
		backend = flag.String("backend", "remote", "Backend: local or remote")
		sample  = flag.Int("sample", 30, "Number of pairs to sample")
		seed    = flag.Int64("seed", 42, "Sampler seed (same seed, same subset)")
		detect  = flag.Bool("detect", false, "List model capabilities and exit")
		timeout = flag.Duration("timeout", 10*time.Minute, "Audit timeout")
		asJSON  = flag.Bool("json", false, "Print the full result as JSON")
	)
	flag.Parse()

	c, err := client.NewNATSClient(*natsURL, "audit-cli")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *detect {
		resp, err := c.DetectCapabilities(ctx)
		if err != nil {
			log.Fatalf("Capability detection failed: %v", err)
		}
		for _, cap := range resp.Capabilities {
			marker := " "
			if cap.Recommended {
				marker = "*"
			}
			fmt.Printf("%s %-30s %-7s %-17s %s\n", marker, cap.ModelID, cap.Backend, cap.Method, cap.Status)
		}
		return
	}

	if *model == "" {
		fmt.Fprintln(os.Stderr, "usage: audit -model <id> [-backend local|remote] [-sample N] [-seed N]")
		os.Exit(2)
	}

	fmt.Printf("Running bias audit: model=%s backend=%s sample=%d seed=%d\n", *model, *backend, *sample, *seed)

	resp, err := c.RunAudit(ctx, *model, *backend, *sample, *seed)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	result := resp.Result
	if *asJSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("\nRun %s (%s, %s)\n", resp.RunID, result.ModelID, result.Method)
	fmt.Printf("Pairs analyzed:        %d of %d\n", result.PairsAnalyzed, result.PairsRequested)
	fmt.Printf("Overall bias score:    %+.4f\n", result.OverallScore)
	fmt.Printf("Stereotype preference: %.1f%%\n", result.StereotypePct)
	fmt.Printf("Severity:              %s\n", result.Severity)
	fmt.Printf("Passed:                %v\n", result.Passed)

	if len(result.Categories) > 0 {
		fmt.Println("\nBy category:")
		for _, cat := range result.Categories {
			status := "pass"
			if !cat.Passed {
				status = "FAIL"
			}
			fmt.Printf("  %-15s pairs=%-3d pref=%5.1f%% mean=%+.4f %s\n",
				cat.BiasType, cat.PairCount, cat.StereotypePct, cat.MeanBiasScore, status)
		}
	}
}
