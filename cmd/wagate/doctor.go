package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"wagate/internal/config"
	"wagate/internal/notice"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your wagate installation",
		Long: `Verifies that wagate's configuration, credentials, database and
listen port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wagate doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'wagate init' or 'wagate setup' to create a configuration.\n")
				return nil
			}
			r.pass("Config file", cfgPath)

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			// 3. Cloud API credentials
			if cfg.WhatsApp.AccessToken == "" || cfg.WhatsApp.PhoneNumberID == "" {
				r.fail("Cloud API", "whatsapp.accessToken and whatsapp.phoneNumberId are required")
			} else {
				r.pass("Cloud API", "phone number "+cfg.WhatsApp.PhoneNumberID)
			}
			if cfg.WhatsApp.VerifyToken == "" {
				r.warn("Webhook", "no verifyToken: subscription challenges will be refused")
			} else {
				r.pass("Webhook", cfg.WhatsApp.WebhookPath)
			}
			if cfg.WhatsApp.AppSecret == "" {
				r.warn("Webhook signature", "no appSecret: payloads are not verified")
			}

			// 4. Database writable
			if err := checkDatabase(cfg.WhatsApp.DBPath); err != nil {
				r.fail("Database", err.Error())
			} else {
				r.pass("Database", cfg.WhatsApp.DBPath)
			}

			// 5. Notice overrides parse
			if cfg.Commands.NoticesPath != "" {
				if _, err := notice.Load(cfg.Commands.NoticesPath); err != nil {
					r.fail("Notices", err.Error())
				} else {
					r.pass("Notices", cfg.Commands.NoticesPath)
				}
			}

			// 6. Listen port
			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				r.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}
			if !cfg.Server.Auth.Enabled {
				r.warn("Server auth", "disabled: anyone reaching the port can send messages")
			}

			// 7. Log file writable
			if cfg.General.LogFile != "" {
				if err := ensureDir(cfg.General.LogFile); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.summary()
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running wagate.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nwagate should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! wagate is ready to run.\n")
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
