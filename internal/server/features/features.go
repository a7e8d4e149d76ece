// Package features decides which gallery features are enabled per user.
package features

import (
	"strings"

	"github.com/RightsTracker/NuGetGallery/internal/server/models"
)

// Config gates symbols upload. Usernames are compared case-insensitively.
type Config struct {
	symbolsForAll bool
	symbolsUsers  map[string]struct{}
}

// NewConfig enables symbols upload for everyone when enableForAll is set, and
// otherwise only for the listed usernames.
func NewConfig(enableForAll bool, allowList []string) *Config {
	users := make(map[string]struct{}, len(allowList))
	for _, u := range allowList {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			users[u] = struct{}{}
		}
	}
	return &Config{symbolsForAll: enableForAll, symbolsUsers: users}
}

func (c *Config) IsSymbolsUploadEnabledForUser(user *models.User) bool {
	if user == nil {
		return false
	}
	if c.symbolsForAll {
		return true
	}
	_, ok := c.symbolsUsers[strings.ToLower(user.Username)]
	return ok
}
