package scanning

import (
	"sort"
	"strconv"
	"strings"

	"github.com/anstrom/netreach/internal/errors"
)

const maxPort = 65535

// ParsePorts parses a port specification of comma-separated single
// ports and dashed ranges ("22,80,8000-8100"). The result is
// deduplicated and sorted ascending.
func ParsePorts(spec string) ([]uint16, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.NewConfigFieldError(errors.CodePortInvalid,
			"Empty port specification", "ports", spec)
	}

	seen := make(map[uint16]struct{})
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := parsePort(bounds[0])
			if err != nil {
				return nil, errors.NewConfigFieldError(errors.CodePortInvalid,
					"Invalid start port in range", "ports", part)
			}
			end, err := parsePort(bounds[1])
			if err != nil {
				return nil, errors.NewConfigFieldError(errors.CodePortInvalid,
					"Invalid end port in range", "ports", part)
			}
			if end < start {
				return nil, errors.NewConfigFieldError(errors.CodePortInvalid,
					"Range end precedes range start", "ports", part)
			}
			for p := int(start); p <= int(end); p++ {
				seen[uint16(p)] = struct{}{}
			}
			continue
		}

		p, err := parsePort(part)
		if err != nil {
			return nil, errors.NewConfigFieldError(errors.CodePortInvalid,
				"Invalid port", "ports", part)
		}
		seen[p] = struct{}{}
	}

	if len(seen) == 0 {
		return nil, errors.NewConfigFieldError(errors.CodePortInvalid,
			"Port specification contains no ports", "ports", spec)
	}

	ports := make([]uint16, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxPort {
		return 0, strconv.ErrRange
	}
	return uint16(n), nil
}
