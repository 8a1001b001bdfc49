package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// defaultListLimit caps how many items /unread and /search show.
const defaultListLimit = 10

// ParseAddArgs extracts a feed URL and an optional name. Without a name the
// URL host is used.
func ParseAddArgs(args string) (feedURL, name string, err error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("usage: /add <url> [name]")
	}
	u, err := url.Parse(parts[0])
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("invalid feed URL %q", parts[0])
	}
	name = strings.Join(parts[1:], " ")
	if name == "" {
		name = u.Host
	}
	return parts[0], name, nil
}

// ParseRenameArgs splits "<old name> | <new name>".
func ParseRenameArgs(args string) (string, string, error) {
	oldName, newName, ok := strings.Cut(args, "|")
	oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
	if !ok || oldName == "" {
		return "", "", fmt.Errorf("usage: /rename <name> | <new name>")
	}
	if newName == "" {
		return "", "", fmt.Errorf("new name cannot be empty")
	}
	return oldName, newName, nil
}

// ParseListArgs extracts a feed name and an optional trailing item limit.
func ParseListArgs(args string) (string, int, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", 0, fmt.Errorf("feed name is required")
	}
	limit := defaultListLimit
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if n < 1 || n > 50 {
				return "", 0, fmt.Errorf("limit must be between 1 and 50")
			}
			limit = n
			parts = parts[:len(parts)-1]
		}
	}
	return strings.Join(parts, " "), limit, nil
}
