package gtfs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxHours keeps parsed times within 32 bits.
const maxHours = math.MaxInt32 / 3600

// ParseDaySeconds parses HH:MM:SS (or H:MM:SS, HH:MM) possibly with hours >= 24.
func ParseDaySeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > maxHours {
			return 0, fmt.Errorf("malformed time %q", s)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}

// FormatDaySeconds is the inverse of ParseDaySeconds; hours are not wrapped at 24.
func FormatDaySeconds(sec int) string {
	if sec < 0 {
		return "-" + FormatDaySeconds(-sec)
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec/60%60, sec%60)
}
