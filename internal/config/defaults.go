package config

// DefaultAddr is loopback only; set addr = "0.0.0.0:7878" with
// require_auth for LAN clients.
const DefaultAddr = "127.0.0.1:7878"

const (
	DirName              = ".chrono"
	DefaultDBName        = "chrono.db"
	DefaultTemplatesName = "templates.yaml"
	DefaultCertDirName   = "certs"

	// MaxMinutes matches the timer's single-session bound.
	MaxMinutes = 24 * 60
)

const defaultFile = `# chrono configuration

# Listen address for the HTTP API and WebSocket stream.
addr = "127.0.0.1:7878"

# Session lengths in minutes.
default_minutes = 25
short_break_minutes = 5
long_break_minutes = 15

# Pause a running session after this many seconds without activity.
idle_timeout_seconds = 120

notifications = true
keep_awake = false

# Set both to let paired phones connect over the LAN.
mdns_enabled = false
require_auth = false

# Serve HTTPS and WSS with a self-signed certificate. Paired devices pin
# its fingerprint, shown by chrono pair.
tls = false

# [github]
# token = ""
# repo = "owner/name"

# [gitlab]
# token = ""
# host = "https://gitlab.com"
# project = ""

# [jira]
# domain = "example.atlassian.net"
# email = ""
# token = ""
`
