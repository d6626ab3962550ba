package protocol

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Default ports of the bridge's TCP peers.
const (
	DefaultControlPort    = 10021
	DefaultMappingPort    = 10022
	DefaultCompletionPort = 10023
	DefaultOpsPort        = 10024
)

// Endpoint is a host/port pair with a request timeout.
type Endpoint struct {
	Host    string        `json:"host"`
	Port    int           `json:"port"`
	Timeout time.Duration `json:"timeout"`
}

// SetDefaults fills empty fields, using port when none is configured.
func (e *Endpoint) SetDefaults(port int) {
	if e.Host == "" {
		e.Host = "127.0.0.1"
	}
	if e.Port == 0 {
		e.Port = port
	}
	if e.Timeout == 0 {
		e.Timeout = DefaultTimeout
	}
}

// Validate checks the port range.
func (e Endpoint) Validate() error {
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("port %d out of range", e.Port)
	}
	if e.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Addr renders host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
