// Command udptlspipe runs a local UDP pipe: datagrams sent to the
// loopback port are carried to the remote server inside a disguised TLS
// stream and replies flow back to the sending peer.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/pborman/getopt/v2"

	"github.com/tlspipe/udptlspipe/pkg/config"
	"github.com/tlspipe/udptlspipe/pkg/pipe"
)

var (
	startTime = time.Now()
)

func printUsage() {
	getopt.Usage()
	os.Exit(0)
}

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optDestination := getopt.StringLong("destination", 'd', "", "Server to connect to (host:port)")
	optPassword := getopt.StringLong("password", 'p', "", "Access password sent to the server")
	optSNI := getopt.StringLong("sni", 'n', "", "Server name sent in the TLS handshake")
	optSecure := getopt.BoolLong("secure", 's', "Verify the server TLS certificate")
	optProxy := getopt.StringLong("proxy", 'x', "", "Upstream proxy URL (socks5:// or http://)")
	optFingerprint := getopt.StringLong("fingerprint", 'f', "", "TLS fingerprint profile (okhttp, chrome, firefox, safari, edge, ios, randomized)")
	optListenPort := getopt.IntLong("listen-port", 'l', 0, "Local UDP port to listen on (0 picks a free one)")
	optVerbosity := getopt.Uint16Long("verbosity", 'v', uint16(4), "Verbosity level (1 to 5, 1 is lowest)")

	helpFlag := getopt.Bool('h', "Display help")

	getopt.Parse()

	if *helpFlag || (*optDestination == "" && *optConfig == "") {
		printUsage()
	}

	verbosityLevel := log.InfoLevel
	switch *optVerbosity {
	case uint16(1):
		verbosityLevel = log.FatalLevel
	case uint16(2):
		verbosityLevel = log.ErrorLevel
	case uint16(3):
		verbosityLevel = log.WarnLevel
	case uint16(4):
		verbosityLevel = log.InfoLevel
	case uint16(5):
		verbosityLevel = log.DebugLevel
	default:
		verbosityLevel = log.DebugLevel
	}

	logger := &log.Logger{Level: verbosityLevel, Handler: &logHandler{Writer: os.Stderr}}

	opts := []config.Option{
		config.WithLogger(logger),
	}
	if *optConfig != "" {
		opts = append(opts, config.WithConfigFile(*optConfig))
	} else {
		opts = append(opts, config.WithPipeOptions(&config.PipeOptions{
			Enabled:            true,
			Destination:        *optDestination,
			Password:           *optPassword,
			TLSServerName:      *optSNI,
			Secure:             *optSecure,
			ProxyURL:           *optProxy,
			FingerprintProfile: *optFingerprint,
			ListenPort:         *optListenPort,
		}))
	}

	svc := pipe.NewService()
	handle, err := svc.Start(config.NewConfig(opts...))
	if err != nil {
		fmt.Println("fatal: " + err.Error())
		os.Exit(1)
	}
	logger.Infof("udptlspipe %s listening on 127.0.0.1:%d", svc.Version(), svc.LocalPort(handle))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	svc.Stop(handle)
}

type logHandler struct {
	io.Writer
}

func (h *logHandler) HandleLog(e *log.Entry) (err error) {
	var s string
	if e.Level == log.DebugLevel {
		s = fmt.Sprintf("%s", e.Message)
	} else if e.Level == log.ErrorLevel {
		s = fmt.Sprintf("[%14.6f] <!err> %s", time.Since(startTime).Seconds(), e.Message)
	} else {
		s = fmt.Sprintf("[%14.6f] <%s> %s", time.Since(startTime).Seconds(), e.Level, e.Message)
	}
	if len(e.Fields) > 0 {
		s += fmt.Sprintf(": %+v", e.Fields)
	}
	s += "\n"
	_, err = h.Writer.Write([]byte(s))
	return
}
