// ABOUTME: init command that writes a starter YAML config interactively
// ABOUTME: Generates a JWT secret when the HTTP API is enabled

package cli

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-responder/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), opts.path())
		},
	}
}

// prompter reads one answer per line, falling back to a default on empty input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(question, def string) string {
	color.New(color.FgGreen).Fprint(p.out, "    ▶ ")
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	answer, _ := p.in.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func (p *prompter) confirm(question string) bool {
	return strings.EqualFold(p.ask(question+" [y/N]", ""), "y")
}

func runInit(in io.Reader, out io.Writer, configPath string) error {
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	color.New(color.FgCyan).Fprint(out, banner)
	fmt.Fprintln(out, "    Interactive Setup")
	fmt.Fprintln(out, "    -----------------")
	fmt.Fprintln(out)

	p := &prompter{in: bufio.NewReader(in), out: out}

	if _, err := os.Stat(configPath); err == nil {
		yellow.Fprintf(out, "    Config already exists at %s\n", configPath)
		if !p.confirm("Overwrite?") {
			fmt.Fprintln(out, "    Aborted.")
			return nil
		}
		fmt.Fprintln(out)
	}

	var cfg config.Config
	cfg.Database.Path = p.ask("Database path", filepath.Join(config.DataDir(), "responder.db"))
	cfg.Logging.Level = config.DefaultLogLevel
	cfg.Logging.Format = config.DefaultLogFormat
	cfg.Matrix.DedupeTTL = config.DefaultDedupeTTL

	cfg.Server.HTTPAddr = p.ask("HTTP API address (empty to disable)", "")
	if cfg.Server.HTTPAddr != "" {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		cfg.Auth.JWTSecret = secret
	}

	if p.confirm("Connect to Matrix?") {
		cfg.Matrix.Enabled = true
		cfg.Matrix.Homeserver = p.ask("Matrix homeserver URL", "https://matrix.org")
		cfg.Matrix.Username = p.ask("Matrix username", "")
		cfg.Matrix.Password = p.ask("Matrix password", "")
		cfg.Matrix.RecoveryKey = p.ask("Matrix recovery key (optional, for E2EE)", "")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid answers: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte("# coven-responder configuration\n# Generated by coven-responder init\n\n"), data...)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintln(out)
	green.Fprintf(out, "    ✓ Config written to %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "    Next steps:")
	fmt.Fprintln(out, "    1. Run: coven-responder serve")
	fmt.Fprintln(out)
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
