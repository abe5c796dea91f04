// Copyright 2024-2026 Aiku AI

package telegram

import (
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

const DefaultContactNameTemplate = "{{.FirstName}} {{.LastName}}"

// Config holds the Telegram adapter configuration.
type Config struct {
	// GatewayURL is the WebSocket endpoint of the TDLib JSON gateway.
	GatewayURL   string `yaml:"gateway_url"`
	InstanceName string `yaml:"instance_name"`

	DatabaseDirectory  string `yaml:"database_directory"`
	APIID              int32  `yaml:"api_id"`
	APIHash            string `yaml:"api_hash"`
	SystemLanguageCode string `yaml:"system_language_code"`
	DeviceModel        string `yaml:"device_model"`
	ApplicationVersion string `yaml:"application_version"`

	ContactNameTemplate string `yaml:"contact_name_template"`
	// ContactFetchConcurrency above 1 fetches contact details in parallel.
	ContactFetchConcurrency int `yaml:"contact_fetch_concurrency"`
	// SkipFailedContacts publishes the contacts that could be fetched
	// instead of aborting the whole pull.
	SkipFailedContacts bool `yaml:"skip_failed_contacts"`
	// LenientLogin makes LogIn return nil instead of ErrNotReady before the
	// network asks for a phone number.
	LenientLogin        bool   `yaml:"lenient_login"`
	MarkdownEntities    bool   `yaml:"markdown_entities"`
	ContactSyncSchedule string `yaml:"contact_sync_schedule"`

	contactNameTemplate *template.Template `yaml:"-"`
}

// ContactNameParams holds the parameters for rendering the contact name template.
type ContactNameParams struct {
	ID          int64
	FirstName   string
	LastName    string
	Username    string
	PhoneNumber string
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		InstanceName:        "casualchat-tdweb",
		DatabaseDirectory:   "./td-db",
		SystemLanguageCode:  "en",
		DeviceModel:         "Casual Chat Client",
		ApplicationVersion:  "1",
		ContactNameTemplate: DefaultContactNameTemplate,
		MarkdownEntities:    true,
	}
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func (c *Config) PostProcess() error {
	if c.ContactFetchConcurrency < 0 {
		return fmt.Errorf("contact_fetch_concurrency must not be negative, got %d", c.ContactFetchConcurrency)
	}
	tpl := c.ContactNameTemplate
	if tpl == "" {
		tpl = DefaultContactNameTemplate
	}
	var err error
	c.contactNameTemplate, err = template.New("contact_name").Parse(tpl)
	if err != nil {
		return fmt.Errorf("failed to parse contact_name_template: %w", err)
	}
	return nil
}

// FormatContactName renders the contact name template for user, falling
// back to the username and then the id when it renders blank.
func (c *Config) FormatContactName(user *tdproto.User) string {
	if c.contactNameTemplate != nil {
		var sb strings.Builder
		err := c.contactNameTemplate.Execute(&sb, ContactNameParams{
			ID:          user.ID,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			Username:    user.Username,
			PhoneNumber: user.PhoneNumber,
		})
		if name := strings.TrimSpace(sb.String()); err == nil && name != "" {
			return name
		}
	}
	if user.Username != "" {
		return user.Username
	}
	return tdproto.MakeExternalID(user.ID)
}

func (c *Config) tdlibParameters() tdproto.TdlibParameters {
	return tdproto.TdlibParameters{
		DatabaseDirectory:  c.DatabaseDirectory,
		APIID:              c.APIID,
		APIHash:            c.APIHash,
		SystemLanguageCode: c.SystemLanguageCode,
		DeviceModel:        c.DeviceModel,
		ApplicationVersion: c.ApplicationVersion,
	}
}
