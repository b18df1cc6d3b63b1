package services

import (
	"strings"
)

// AnalyzeBanner matches a grabbed banner against known service
// signatures and extracts a version string where the format allows.
// Both return values are empty when nothing matches.
func AnalyzeBanner(banner string) (service, version string) {
	switch {
	case strings.HasPrefix(banner, "SSH-"):
		return "ssh", sshVersion(banner)
	case strings.Contains(banner, "HTTP/"):
		return "http", httpServerVersion(banner)
	case strings.HasPrefix(banner, "220 "), strings.HasPrefix(banner, "220-"):
		return smtpOrFTP(banner)
	case strings.HasPrefix(banner, "+OK"):
		return "pop3", ""
	case strings.HasPrefix(banner, "* OK"):
		return "imap", ""
	case strings.Contains(banner, "mysql") || strings.Contains(banner, "MariaDB"):
		return "mysql", ""
	case strings.Contains(banner, "PostgreSQL"):
		return "postgresql", ""
	case strings.Contains(strings.ToLower(banner), "telnet"):
		return "telnet", ""
	default:
		return "", ""
	}
}

// sshVersion extracts the software token from an SSH identification
// string ("SSH-2.0-OpenSSH_9.6" yields "OpenSSH_9.6").
func sshVersion(banner string) string {
	line := firstLine(banner)
	parts := strings.SplitN(line, "-", 3)
	if len(parts) == 3 {
		return strings.TrimSpace(parts[2])
	}
	return ""
}

// httpServerVersion pulls the Server header out of an HTTP response.
func httpServerVersion(banner string) string {
	for _, line := range strings.Split(banner, "\n") {
		line = strings.TrimRight(line, "\r")
		if rest, ok := cutPrefixFold(line, "server:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// smtpOrFTP disambiguates 220 greetings shared by SMTP and FTP.
func smtpOrFTP(banner string) (service, version string) {
	line := firstLine(banner)
	lower := strings.ToLower(line)

	service = "smtp"
	if strings.Contains(lower, "ftp") {
		service = "ftp"
	}

	for _, token := range []string{"vsFTPd", "ProFTPD", "Postfix", "Exim", "Sendmail", "FileZilla"} {
		if idx := strings.Index(line, token); idx >= 0 {
			rest := strings.TrimSpace(line[idx:])
			if end := strings.IndexAny(rest, ") "); end > 0 {
				return service, rest[:end]
			}
			return service, rest
		}
	}
	return service, ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimRight(s, "\r")
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) {
		return s, false
	}
	if strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
