// Package notice holds the fixed user-facing strings sent to chats, API
// callers and console observers.
package notice

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed notices.yaml
var defaultYAML []byte

// Well-known keys.
const (
	StatusConnecting    = "status.connecting"
	StatusQR            = "status.qr"
	StatusAuthenticated = "status.authenticated"
	StatusReady         = "status.ready"
	StatusAuthFailure   = "status.auth_failure"
	StatusDisconnected  = "status.disconnected"

	APIInvalidValue  = "api.invalid_value"
	APINotRegistered = "api.not_registered"
	APIFileExclusive = "api.file_exclusive"

	Pong          = "command.pong"
	GroupOnly     = "command.group_only"
	JoinedGroup   = "command.joined_group"
	InvalidInvite = "command.invalid_invite"
	DeleteOwnOnly = "command.delete_own_only"
	EditOwnOnly   = "command.edit_own_only"
	StatusUpdated = "command.status_updated"
	ChatsCount    = "command.chats_count"
	ResendCaption = "command.resend_caption"
	Mention       = "command.mention"
	Unsupported   = "command.unsupported"
	CallRejected  = "command.call_rejected"
)

// Catalog maps dotted keys to strings.
type Catalog struct {
	entries map[string]string
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("notice: embedded catalog: %v", err))
	}
	return c
}

// Load returns the embedded catalog with keys from path layered on top.
// An empty path returns Default().
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notices %s: %w", path, err)
	}
	override, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse notices %s: %w", path, err)
	}
	for k, v := range override.entries {
		c.entries[k] = v
	}
	return c, nil
}

func parse(data []byte) (*Catalog, error) {
	var tree map[string]map[string]string
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	c := &Catalog{entries: make(map[string]string)}
	for group, kv := range tree {
		for k, v := range kv {
			c.entries[group+"."+k] = v
		}
	}
	return c, nil
}

// Get returns the string for key, or the key itself when unknown.
func (c *Catalog) Get(key string) string {
	if c == nil {
		return key
	}
	if v, ok := c.entries[key]; ok {
		return v
	}
	return key
}

// Format applies fmt.Sprintf to the string for key.
func (c *Catalog) Format(key string, args ...any) string {
	return fmt.Sprintf(c.Get(key), args...)
}
