package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Journal Agent Configuration
# Secrets may also be supplied through environment variables or a .env file.

[server]
addr = ":8080"
read_timeout = "30s"
# Base URL users reach the API on; used for Google connect links
public_url = "http://localhost:8080"
# Where the OAuth callback redirects browsers after connecting
# frontend_url = ""

[capture]
# How long an idle capture session survives
session_ttl = "15m"
# Session backend: sqlite, memory, redis
backend = "sqlite"
# db_path = "~/.config/journalbot/journal.db"

[redis]
addr = "localhost:6379"
password = ""
db = 0

[llm]
# Any OpenAI-compatible endpoint works
api_key = ""
base_url = "https://generativelanguage.googleapis.com/v1beta/openai/"
model = "gemini-1.5-flash"
reply_model = "gemini-1.5-flash"
timeout = "30s"
# Consecutive model failures that pause model calls for breaker_cooldown
breaker_threshold = 5
breaker_cooldown = "30s"

[google]
client_id = ""
client_secret = ""
redirect_url = ""
default_sheet_id = ""
sheet_range = "Journal!A1"
drive_folder_id = ""

[oauth]
state_ttl = "10m"
state_secret = ""

[security]
# Key used to encrypt stored OAuth tokens
token_key = ""
audit_enabled = true

[telegram]
bot_token = ""
webhook_secret = ""
default_sheet_id = ""

[attachments]
max_bytes = 10485760
allowed_mime_types = ["image/png", "image/jpeg", "image/webp", "application/pdf", "audio/mpeg", "audio/ogg", "audio/wav", "text/plain", "text/csv"]

[analysis]
topic = "analysis.jobs"
workers = 1
search_api_key = ""
search_engine = "google"

[logging]
level = "info"
file = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
