// Command dignode runs a single dig network node: identity, transport,
// store sync, download cascade, privacy overlay, and bootstrap fallback,
// wired together per §4.12 and served until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/peterbourgon/ff/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dig-network/dignode/internal/node"
	"github.com/dig-network/dignode/internal/nodecfg"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dignode:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := nodecfg.Default()

	fs := flag.NewFlagSet("dignode", flag.ContinueOnError)
	digHome := fs.String("dig-home", cfg.DigHome, "directory holding stores and identity key")
	port := fs.Int("port", cfg.Port, "libp2p listen port (0 = OS-assigned)")
	networkID := fs.String("network-id", cfg.NetworkID, "network identifier carried in every handshake")
	enableMDNS := fs.Bool("enable-mdns", cfg.EnableMDNS, "enable mDNS local peer discovery")
	enableDHT := fs.Bool("enable-dht", cfg.EnableDHT, "enable Kademlia DHT and gossipsub")
	controlPort := fs.Int("control-port", cfg.ControlPort, "localhost-only debug API port (0 disables it)")
	configFile := fs.String("config", "", "optional YAML config file, layered under flags/env")
	bootstrapServers := fs.String("bootstrap-servers", "", "comma-separated bootstrap service base URLs")
	passphraseFlag := fs.String("passphrase", "", "passphrase unlocking identity.key (or DIG_PASSPHRASE)")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("DIG")); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	if *configFile != "" {
		loaded, err := nodecfg.LoadYAML(cfg, *configFile)
		if err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	// flags explicitly set on the command line win over both the config
	// file and the environment, matching ff's own precedence order.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dig-home":
			cfg.DigHome = *digHome
		case "port":
			cfg.Port = *port
		case "network-id":
			cfg.NetworkID = *networkID
		case "enable-mdns":
			cfg.EnableMDNS = *enableMDNS
		case "enable-dht":
			cfg.EnableDHT = *enableDHT
		case "control-port":
			cfg.ControlPort = *controlPort
		}
	})
	if *bootstrapServers != "" {
		cfg.BootstrapServers = splitCommaList(*bootstrapServers)
	}

	passphrase, err := resolvePassphrase(*passphraseFlag)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	app := node.App(log, cfg, node.Passphrase(passphrase))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	<-ctx.Done()
	log.Info("dignode: shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return app.Stop(stopCtx)
}

// resolvePassphrase prefers the explicit flag/env value; when absent and
// stdin is a terminal it prompts interactively via survey, mirroring the
// teacher's --env-pass/MIXNETS_ENV_PASS fallback chain with an added
// interactive rung instead of failing immediately.
func resolvePassphrase(flagValue string) ([]byte, error) {
	if flagValue != "" {
		return []byte(flagValue), nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("passphrase required: set --passphrase, DIG_PASSPHRASE, or run interactively")
	}
	var pass string
	prompt := &survey.Password{Message: "identity.key passphrase:"}
	if err := survey.AskOne(prompt, &pass); err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if pass == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return []byte(pass), nil
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
