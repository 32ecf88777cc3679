// Package humanize formats byte counts and transfer rates for log
// output.
package humanize

import "fmt"

func BPS(bps uint64) string {
	return Bytes(bps) + "/s"
}

func Bytes(bytes uint64) string {
	switch {
	case bytes >= (1024 * 1024 * 1024):
		return fmt.Sprintf("%.1f GiB", float64(bytes)/1024/1024/1024)
	case bytes >= (1024 * 1024):
		return fmt.Sprintf("%.f MiB", float64(bytes)/1024/1024)
	case bytes >= 1024:
		return fmt.Sprintf("%.f KiB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
