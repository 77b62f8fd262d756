// Package discover reads the system neighbor/ARP table and turns it
// into a deduplicated device inventory.
package discover

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/netdiag/pkg/models"
)

const procNetARP = "/proc/net/arp"

// Discoverer lists local network devices from the ARP cache.
type Discoverer struct {
	logger *zap.Logger
}

// New creates a discoverer.
func New(logger *zap.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Devices reads the platform's neighbor table and returns one record
// per distinct (IP, MAC) pair, sorted by IP.
//
// An empty or entirely unparsable table yields an empty slice; only
// the inability to read the table at all (tool missing, privilege,
// unsupported platform) is an OperationUnavailableError.
func (d *Discoverer) Devices(ctx context.Context) ([]models.DeviceRecord, error) {
	switch runtime.GOOS {
	case "linux":
		return d.linuxDevices(ctx)
	case "windows", "darwin":
		return d.commandDevices(ctx)
	default:
		return nil, &models.OperationUnavailableError{
			Operation: "device discovery",
			Reason:    fmt.Sprintf("neighbor table not readable on %s", runtime.GOOS),
		}
	}
}

// linuxDevices prefers /proc/net/arp and falls back to the arp command
// when procfs is not readable.
func (d *Discoverer) linuxDevices(ctx context.Context) ([]models.DeviceRecord, error) {
	data, err := os.ReadFile(procNetARP)
	if err != nil {
		d.logger.Debug("cannot read /proc/net/arp, falling back to arp command", zap.Error(err))
		return d.commandDevices(ctx)
	}
	return d.collect(ParseTable(string(data), "linux")), nil
}

// commandDevices shells out to `arp -a` and parses its output.
func (d *Discoverer) commandDevices(ctx context.Context) ([]models.DeviceRecord, error) {
	path, err := exec.LookPath("arp")
	if err != nil {
		return nil, &models.OperationUnavailableError{
			Operation: "device discovery",
			Reason:    "arp command not found; elevated privileges or platform tools may be required",
		}
	}
	out, err := exec.CommandContext(ctx, path, "-a").Output()
	if err != nil {
		return nil, &models.OperationUnavailableError{
			Operation: "device discovery",
			Reason:    fmt.Sprintf("running %s -a: %v", path, err),
		}
	}
	return d.collect(ParseTable(string(out), runtime.GOOS)), nil
}

func (d *Discoverer) collect(records []models.DeviceRecord) []models.DeviceRecord {
	d.logger.Info("device discovery complete", zap.Int("devices", len(records)))
	return records
}

// ParseTable parses neighbor-table text in the given platform's layout
// into deduplicated records sorted by IP. Lines that do not match the
// expected shape are skipped, never fatal. Exported for testing.
func ParseTable(output, platform string) []models.DeviceRecord {
	var parseLine func(line string) (models.DeviceRecord, bool)
	switch platform {
	case "linux":
		parseLine = parseLinuxLine
	case "windows":
		parseLine = parseWindowsLine
	case "darwin":
		parseLine = parseDarwinLine
	default:
		return []models.DeviceRecord{}
	}

	seen := make(map[string]bool)
	records := []models.DeviceRecord{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		rec, ok := parseLine(scanner.Text())
		if !ok || seen[rec.Key()] {
			continue
		}
		seen[rec.Key()] = true
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].IP < records[j].IP })
	return records
}

// parseLinuxLine handles /proc/net/arp rows:
// IP address HW type Flags HW address Mask Device
// The header row fails the IP shape check and falls out naturally.
func parseLinuxLine(line string) (models.DeviceRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !looksLikeIP(fields[0]) {
		return models.DeviceRecord{}, false
	}
	return newRecord(fields[0], fields[3])
}

// parseWindowsLine handles `arp -a` rows:
// 192.168.1.1   aa-bb-cc-dd-ee-ff   dynamic
func parseWindowsLine(line string) (models.DeviceRecord, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 || !looksLikeIP(fields[0]) {
		return models.DeviceRecord{}, false
	}
	return newRecord(fields[0], fields[1])
}

// parseDarwinLine handles `arp -a` rows:
// hostname (192.168.1.1) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]
func parseDarwinLine(line string) (models.DeviceRecord, bool) {
	open := strings.Index(line, "(")
	closing := strings.Index(line, ")")
	if open < 0 || closing < 0 || closing <= open {
		return models.DeviceRecord{}, false
	}
	ip := line[open+1 : closing]

	atIdx := strings.Index(line[closing:], " at ")
	if atIdx < 0 {
		return models.DeviceRecord{}, false
	}
	rest := strings.Fields(line[closing+atIdx+4:])
	if len(rest) == 0 || !looksLikeIP(ip) {
		return models.DeviceRecord{}, false
	}
	return newRecord(ip, rest[0])
}

// newRecord normalizes the MAC and filters incomplete and broadcast
// entries.
func newRecord(ip, mac string) (models.DeviceRecord, bool) {
	mac = NormalizeMAC(mac)
	if !validMAC(mac) {
		return models.DeviceRecord{}, false
	}
	return models.DeviceRecord{IP: ip, MAC: mac}, true
}

// NormalizeMAC converts a hardware address to upper-case
// colon-separated form.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
}

// validMAC accepts six colon-separated hex octets, excluding the
// incomplete and broadcast placeholders.
func validMAC(mac string) bool {
	if mac == "00:00:00:00:00:00" || mac == "FF:FF:FF:FF:FF:FF" {
		return false
	}
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) < 1 || len(part) > 2 {
			return false
		}
		for _, c := range part {
			if !isHexDigit(c) {
				return false
			}
		}
	}
	return true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

// looksLikeIP is a cheap shape check: the tolerant parser only needs
// to reject header and interface-section rows, not validate addresses.
func looksLikeIP(s string) bool {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return false
	}
	return strings.Count(s, ".") == 3
}
