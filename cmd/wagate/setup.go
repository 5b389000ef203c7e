package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"wagate/internal/config"

	"github.com/spf13/cobra"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: Cloud API credentials → phone defaults → server → save config",
		Long:  "Guides you through the WhatsApp Cloud API credentials, the default country code and the HTTP server settings. Writes config to the path used by --config or default.",
		RunE:  runSetup,
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Cloud API
	fmt.Println("\n--- Step 1: WhatsApp Cloud API ---")
	wa := &cfg.WhatsApp
	steps := []struct {
		label  string
		target *string
		def    string
	}{
		{"Access token (paste or env var)", &wa.AccessToken, orDefault(wa.AccessToken, "${WHATSAPP_ACCESS_TOKEN}")},
		{"Phone number ID", &wa.PhoneNumberID, wa.PhoneNumberID},
		{"Webhook verify token", &wa.VerifyToken, wa.VerifyToken},
		{"App secret (optional, enables signature checks)", &wa.AppSecret, wa.AppSecret},
	}
	for _, s := range steps {
		fmt.Fprint(os.Stdout, s.label)
		v, err := prompt(s.def)
		if err != nil {
			return err
		}
		*s.target = v
	}
	fmt.Fprintf(os.Stdout, "  Webhook will be served at %s\n", wa.WebhookPath)

	// Step 2: Phone numbers
	fmt.Println("\n--- Step 2: Phone numbers ---")
	fmt.Fprint(os.Stdout, "Default country code for local numbers")
	cc, err := prompt(cfg.Phone.CountryCode)
	if err != nil {
		return err
	}
	cfg.Phone.CountryCode = strings.TrimPrefix(cc, "+")

	// Step 3: Server
	fmt.Println("\n--- Step 3: HTTP server ---")
	fmt.Fprint(os.Stdout, "Port")
	port, err := prompt(strconv.Itoa(cfg.Server.Port))
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(port); err == nil {
		cfg.Server.Port = n
	}
	fmt.Fprint(os.Stdout, "Console/API password (empty disables auth)")
	password, err := prompt("")
	if err != nil {
		return err
	}
	if password != "" {
		fmt.Fprint(os.Stdout, "Username")
		user, err := prompt(orDefault(cfg.Server.Auth.Username, "admin"))
		if err != nil {
			return err
		}
		cfg.Server.Auth = config.WebAuth{
			Enabled:      true,
			Username:     user,
			PasswordHash: hashPassword(password),
		}
	} else {
		cfg.Server.Auth.Enabled = false
	}

	// Save
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'wagate doctor' to check the setup, then 'wagate serve'.")
	return nil
}

// hashPassword returns the hex SHA-256 the API expects in server.auth.passwordHash.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
