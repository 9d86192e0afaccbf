// Package config contains the options to initialize a pipe.
package config

import (
	"net"
	"strconv"

	"github.com/apex/log"

	"github.com/tlspipe/udptlspipe/internal/model"
	"github.com/tlspipe/udptlspipe/internal/runtimex"
)

// Config contains options to initialize a pipe client.
type Config struct {
	// pipeOptions contains the options related to the pipe itself.
	pipeOptions *PipeOptions

	// logger will be used to log events.
	logger model.Logger
}

// NewConfig returns a Config ready to initialize a pipe.
func NewConfig(options ...Option) *Config {
	cfg := &Config{
		pipeOptions: &PipeOptions{Enabled: true},
		logger:      log.Log,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// Option is an option you can pass to initialize the pipe.
type Option func(config *Config)

// WithLogger configures the passed [Logger].
func WithLogger(logger model.Logger) Option {
	return func(config *Config) {
		config.logger = logger
	}
}

// Logger returns the configured logger.
func (c *Config) Logger() model.Logger {
	return c.logger
}

// WithPipeOptions configures the passed pipe options.
func WithPipeOptions(pipeOptions *PipeOptions) Option {
	return func(config *Config) {
		config.pipeOptions = pipeOptions
	}
}

// WithConfigFile configures PipeOptions parsed from the given file.
func WithConfigFile(configPath string) Option {
	return func(config *Config) {
		pipeOptions, err := ReadConfigFile(configPath)
		runtimex.PanicOnError(err, "cannot parse config file")
		config.pipeOptions = pipeOptions
	}
}

// WithDestination configures the remote server endpoint (host:port).
func WithDestination(destination string) Option {
	return func(config *Config) {
		config.pipeOptions.Destination = destination
	}
}

// WithListenPort configures a fixed local listen port (0 auto-assigns).
func WithListenPort(port int) Option {
	return func(config *Config) {
		config.pipeOptions.ListenPort = port
	}
}

// PipeOptions returns the configured pipe options.
func (c *Config) PipeOptions() *PipeOptions {
	return c.pipeOptions
}

// Remote has info about the pipe remote, useful to pass to the dialer.
type Remote struct {
	// Host is the host portion of the destination.
	Host string

	// Port is the port portion of the destination.
	Port string

	// Endpoint is in the form host:port.
	Endpoint string
}

// Remote returns the pipe remote, or an error if the configured
// destination is not a valid host:port pair.
func (c *Config) Remote() (*Remote, error) {
	host, port, err := net.SplitHostPort(c.pipeOptions.Destination)
	if err != nil {
		return nil, err
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, err
	}
	return &Remote{
		Host:     host,
		Port:     port,
		Endpoint: net.JoinHostPort(host, port),
	}, nil
}
