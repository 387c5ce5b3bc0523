// checkconfig loads a response config file, reports what it found, and
// optionally dry-runs a message against the rules. Exits non-zero when the
// file fails to parse so it works as a pre-deploy check.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kingfisher-im/kingfisher/internal/config"
)

func main() {
	path := flag.String("config", "./kingfisher.toml", "path to the response config file")
	message := flag.String("message", "", "dry-run this message against the rules")
	write := flag.Bool("write", false, "rewrite the file in normalized form")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %d responses\n", *path, len(cfg.Responses))
	fmt.Printf("  default cooldown: %s\n", cfg.DefaultCooldown)
	fmt.Printf("  default hit rate: %g\n", cfg.DefaultHitRate)
	for _, r := range cfg.Responses {
		overrides := describeOverrides(r)
		fmt.Printf("  %-20s %s\n", r.Name, overrides)
	}

	if *message != "" {
		matches := cfg.MatchNames(*message)
		if len(matches) == 0 {
			fmt.Printf("no response matches %q\n", *message)
		} else {
			fmt.Printf("%q matches: %s\n", *message, strings.Join(matches, ", "))
		}
	}

	if *write {
		if err := config.Save(cfg, *path); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rewrote %s\n", *path)
	}
}

func describeOverrides(r *config.RegisteredResponse) string {
	var parts []string
	if r.Cooldown != nil {
		parts = append(parts, fmt.Sprintf("cooldown=%s", *r.Cooldown))
	}
	if r.HitRate != nil {
		parts = append(parts, fmt.Sprintf("hit_rate=%g", *r.HitRate))
	}
	if r.Unskippable {
		parts = append(parts, "unskippable")
	}
	if len(parts) == 0 {
		return "(defaults)"
	}
	return strings.Join(parts, " ")
}
