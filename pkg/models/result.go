// Package models defines the result types produced by the netdiag engine
// and the error taxonomy shared by its operations.
package models

import (
	"fmt"
	"time"
)

// PortState classifies the outcome of a single TCP connect attempt.
type PortState string

const (
	// PortOpen means the connection was accepted.
	PortOpen PortState = "open"
	// PortClosed means the connection was actively refused.
	PortClosed PortState = "closed"
	// PortFiltered means no response arrived within the timeout,
	// usually a firewall drop rather than an explicit refusal.
	PortFiltered PortState = "filtered"
)

// PortResult is the classification of one scanned port.
type PortResult struct {
	Port  int       `json:"port"`
	State PortState `json:"state"`
}

// ScanTarget describes a host and an inclusive port range to scan.
// Construct it once and validate before opening any socket.
type ScanTarget struct {
	Host      string `json:"host"`
	StartPort int    `json:"start_port"`
	EndPort   int    `json:"end_port"`
}

// Validate rejects empty hosts and port ranges outside 1-65535 or
// with start > end.
func (t ScanTarget) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("scan target: host must not be empty")
	}
	if t.StartPort < 1 || t.EndPort > 65535 || t.StartPort > t.EndPort {
		return fmt.Errorf("scan target: invalid port range %d-%d", t.StartPort, t.EndPort)
	}
	return nil
}

// PortCount returns the number of ports in the inclusive range.
func (t ScanTarget) PortCount() int {
	return t.EndPort - t.StartPort + 1
}

// ScanReport holds the outcome of one port scan invocation.
// Results are sorted by ascending port number. When the scan was
// interrupted, Partial is true and Abandoned lists the ports for which
// no connection attempt was ever issued.
type ScanReport struct {
	Host      string        `json:"host"`
	IP        string        `json:"ip"`
	Results   []PortResult  `json:"results"`
	Abandoned []int         `json:"abandoned,omitempty"`
	Partial   bool          `json:"partial"`
	Elapsed   time.Duration `json:"elapsed"`
}

// OpenPorts returns the ascending list of ports classified open.
func (r *ScanReport) OpenPorts() []int {
	var open []int
	for _, res := range r.Results {
		if res.State == PortOpen {
			open = append(open, res.Port)
		}
	}
	return open
}

// PingResult holds the outcome of a reachability probe.
// RTTs preserves probe send order, one entry per received reply.
type PingResult struct {
	Host     string          `json:"host"`
	Sent     int             `json:"sent"`
	Received int             `json:"received"`
	RTTs     []time.Duration `json:"rtts"`
	// Degraded is set when the prober had to fall back from raw ICMP
	// to unprivileged datagram mode.
	Degraded bool `json:"degraded,omitempty"`
}

// PacketLoss returns the loss ratio in [0,1], derived from Sent and
// Received. A result with zero probes sent reports full loss.
func (r *PingResult) PacketLoss() float64 {
	if r.Sent == 0 {
		return 1.0
	}
	return 1.0 - float64(r.Received)/float64(r.Sent)
}

// MinRTT returns the smallest observed round-trip time, or 0 when no
// reply was received.
func (r *PingResult) MinRTT() time.Duration {
	var min time.Duration
	for i, rtt := range r.RTTs {
		if i == 0 || rtt < min {
			min = rtt
		}
	}
	return min
}

// MaxRTT returns the largest observed round-trip time, or 0 when no
// reply was received.
func (r *PingResult) MaxRTT() time.Duration {
	var max time.Duration
	for _, rtt := range r.RTTs {
		if rtt > max {
			max = rtt
		}
	}
	return max
}

// AvgRTT returns the mean round-trip time, or 0 when no reply was
// received.
func (r *PingResult) AvgRTT() time.Duration {
	if len(r.RTTs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, rtt := range r.RTTs {
		sum += rtt
	}
	return sum / time.Duration(len(r.RTTs))
}

// TrafficSample holds counter deltas observed over a sampling window.
// Rates are derived from the deltas and the duration, never stored.
type TrafficSample struct {
	BytesSent uint64        `json:"bytes_sent"`
	BytesRecv uint64        `json:"bytes_recv"`
	Duration  time.Duration `json:"duration"`
	// Alert is set when either delta exceeded the configured
	// high-traffic threshold.
	Alert bool `json:"alert,omitempty"`
}

// SentRate returns bytes sent per second over the window, 0 for a
// zero-length window.
func (s *TrafficSample) SentRate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.BytesSent) / s.Duration.Seconds()
}

// RecvRate returns bytes received per second over the window, 0 for a
// zero-length window.
func (s *TrafficSample) RecvRate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.BytesRecv) / s.Duration.Seconds()
}

// DeviceRecord is one entry from the neighbor/ARP table. MAC addresses
// are normalized to upper-case colon-separated form.
type DeviceRecord struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// Key returns the deduplication key for the record.
func (d DeviceRecord) Key() string {
	return d.IP + "|" + d.MAC
}
