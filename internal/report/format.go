// Package report renders engine results as tabular text. All functions
// are pure: they never mutate their inputs and have no side effects
// beyond producing the string.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/HerbHall/netdiag/pkg/models"
)

// Ping renders a reachability probe result.
func Ping(res *models.PingResult) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Host", "Sent", "Received", "Loss", "Min RTT", "Avg RTT", "Max RTT"})
	table.Append([]string{
		res.Host,
		strconv.Itoa(res.Sent),
		strconv.Itoa(res.Received),
		fmt.Sprintf("%.1f%%", res.PacketLoss()*100),
		formatRTT(res.MinRTT()),
		formatRTT(res.AvgRTT()),
		formatRTT(res.MaxRTT()),
	})
	table.Render()
	if res.Degraded {
		buf.WriteString("note: probe ran in fallback socket mode\n")
	}
	return buf.String()
}

// Scan renders a port scan report: one row per classified port in
// ascending order, followed by the abandoned range when the scan was
// interrupted.
func Scan(rep *models.ScanReport) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s (%s): %d ports in %s\n",
		rep.Host, rep.IP, len(rep.Results)+len(rep.Abandoned), rep.Elapsed.Round(time.Millisecond))

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Port", "State"})
	for _, res := range rep.Results {
		table.Append([]string{strconv.Itoa(res.Port), string(res.State)})
	}
	table.Render()

	if rep.Partial {
		fmt.Fprintf(&buf, "scan interrupted: %d ports classified, %d abandoned\n",
			len(rep.Results), len(rep.Abandoned))
	}
	return buf.String()
}

// Traffic renders a traffic sample with its derived rates.
func Traffic(sample *models.TrafficSample) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Direction", "Bytes", "Rate"})
	table.Append([]string{"sent", strconv.FormatUint(sample.BytesSent, 10), formatRate(sample.SentRate())})
	table.Append([]string{"received", strconv.FormatUint(sample.BytesRecv, 10), formatRate(sample.RecvRate())})
	table.Render()

	fmt.Fprintf(&buf, "window: %s\n", sample.Duration)
	if sample.Alert {
		buf.WriteString("ALERT: high network traffic detected\n")
	}
	return buf.String()
}

// Devices renders a device inventory sorted by IP. The input slice is
// left untouched.
func Devices(records []models.DeviceRecord) string {
	if len(records) == 0 {
		return "no devices discovered in the ARP cache\n"
	}

	sorted := make([]models.DeviceRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].IP < sorted[j].IP })

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"IP Address", "MAC Address"})
	for _, rec := range sorted {
		table.Append([]string{rec.IP, rec.MAC})
	}
	table.Render()

	fmt.Fprintf(&buf, "discovered %d devices\n", len(sorted))
	return buf.String()
}

func formatRTT(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(10 * time.Microsecond).String()
}

// formatRate prints bytes per second with a binary-unit suffix.
func formatRate(bps float64) string {
	switch {
	case bps >= 1<<20:
		return fmt.Sprintf("%.2f MiB/s", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.2f KiB/s", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}
