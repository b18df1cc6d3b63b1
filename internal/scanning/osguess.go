package scanning

// guessOSFromTTLs maps observed reply TTLs onto the common initial-TTL
// windows. The guess is best effort: an empty string means no samples
// or nothing recognizable.
func guessOSFromTTLs(ttls []uint8) string {
	if len(ttls) == 0 {
		return ""
	}

	// Use the highest observed TTL; intermediate hops only decrement.
	var max uint8
	for _, ttl := range ttls {
		if ttl > max {
			max = ttl
		}
	}

	switch {
	case max > 128:
		return "network equipment (TTL 255)"
	case max > 64:
		return "windows (TTL 128)"
	case max > 32:
		return "linux/unix (TTL 64)"
	default:
		return ""
	}
}
