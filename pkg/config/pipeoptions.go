package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrBadConfig is returned when a config attribute cannot be parsed.
var ErrBadConfig = errors.New("bad config")

// PipeOptions is a structure containing the pipe attributes recognized
// from the application layer.
type PipeOptions struct {
	// Enabled tells whether the pipe should run at all.
	Enabled bool

	// Destination is the remote server endpoint (host:port).
	Destination string

	// Password is the optional shared secret sent as an authentication
	// parameter on the initial request.
	Password string

	// TLSServerName optionally overrides the SNI; when empty, the
	// destination host is used.
	TLSServerName string

	// Secure enables TLS certificate verification.
	Secure bool

	// ProxyURL is an optional forward proxy (socks5:// or http://).
	ProxyURL string

	// FingerprintProfile selects the disguised handshake shape. An empty
	// or unknown value falls back to the default profile.
	FingerprintProfile string

	// ListenPort is the fixed local UDP port, 0 to auto-assign.
	ListenPort int
}

// ReadConfigFile reads and parses pipe attributes from a file.
func ReadConfigFile(filePath string) (*PipeOptions, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return parseOptionsFromLines(strings.Split(string(data), "\n"))
}

// parseOptionsFromLines parses "key = value" attribute lines. Lines with
// keys we do not recognize belong to the embedding application and are
// skipped.
func parseOptionsFromLines(lines []string) (*PipeOptions, error) {
	opts := &PipeOptions{Enabled: true}
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		key, value, found := strings.Cut(l, "=")
		if !found {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "enabled":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%w: enabled: %s", ErrBadConfig, err)
			}
			opts.Enabled = enabled
		case "destination":
			opts.Destination = value
		case "password":
			opts.Password = value
		case "tlsServerName":
			opts.TLSServerName = value
		case "secure":
			secure, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%w: secure: %s", ErrBadConfig, err)
			}
			opts.Secure = secure
		case "proxy":
			opts.ProxyURL = value
		case "fingerprintProfile":
			opts.FingerprintProfile = value
		case "listenPort":
			port, err := strconv.Atoi(value)
			if err != nil || port < 0 || port > 65535 {
				return nil, fmt.Errorf("%w: listenPort: %s", ErrBadConfig, value)
			}
			opts.ListenPort = port
		default:
			continue
		}
	}
	return opts, nil
}

// Marshal serializes the options back into the textual attribute block
// used when persisting the configuration.
func (o *PipeOptions) Marshal() string {
	var sb strings.Builder
	writeAttr := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "%s = %s\n", key, value)
		}
	}
	writeAttr("enabled", strconv.FormatBool(o.Enabled))
	writeAttr("destination", o.Destination)
	writeAttr("password", o.Password)
	writeAttr("tlsServerName", o.TLSServerName)
	writeAttr("secure", strconv.FormatBool(o.Secure))
	writeAttr("proxy", o.ProxyURL)
	writeAttr("fingerprintProfile", o.FingerprintProfile)
	if o.ListenPort != 0 {
		writeAttr("listenPort", strconv.Itoa(o.ListenPort))
	}
	return sb.String()
}
