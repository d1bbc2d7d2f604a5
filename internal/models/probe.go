package models

import "time"

// Probe methods.
const (
	ProbeICMP = "icmp"
	ProbeHTTP = "http"
)

// ProbeConfig holds reachability probe configuration.
type ProbeConfig struct {
	Method     string
	Timeout    time.Duration // per attempt
	Privileged bool          // use raw ICMP sockets instead of datagram sockets
	URL        string        // http method only; {ip} is replaced by the target
}

// ProbeResult holds the result of a single reachability check.
type ProbeResult struct {
	Reachable bool
	RTT       time.Duration
	Error     error
}
