package fetcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robalyx/bgcheck/internal/fetch"
)

// Default base URLs of the upstream services.
const (
	DefaultRoverBaseURL     = "https://registry.rover.link/api"
	DefaultUsersBaseURL     = "https://users.roblox.com"
	DefaultGroupsBaseURL    = "https://groups.roblox.com"
	DefaultInventoryBaseURL = "https://inventory.roblox.com"
	DefaultEconomyBaseURL   = "https://economy.roblox.com"
)

var (
	// ErrUpstreamUnavailable indicates an upstream kept failing after every retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotLinked indicates the verification registry has no account for a Discord user.
	ErrNotLinked = errors.New("discord user is not linked")
	// ErrUserNotFound indicates the Roblox user does not exist.
	ErrUserNotFound = errors.New("roblox user not found")
)

// Endpoints contains the base URLs used by the fetchers.
type Endpoints struct {
	Rover     string
	Users     string
	Groups    string
	Inventory string
	Economy   string
}

// WithDefaults fills empty base URLs with the public service URLs.
func (e Endpoints) WithDefaults() Endpoints {
	e.Rover = defaultString(e.Rover, DefaultRoverBaseURL)
	e.Users = defaultString(e.Users, DefaultUsersBaseURL)
	e.Groups = defaultString(e.Groups, DefaultGroupsBaseURL)
	e.Inventory = defaultString(e.Inventory, DefaultInventoryBaseURL)
	e.Economy = defaultString(e.Economy, DefaultEconomyBaseURL)

	return e
}

// WithBaseURL points every endpoint at the same base URL.
func WithBaseURL(base string) Endpoints {
	return Endpoints{Rover: base, Users: base, Groups: base, Inventory: base, Economy: base}
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return strings.TrimRight(value, "/")
}

// upstreamError wraps exhausted fetch errors with ErrUpstreamUnavailable.
// Other errors are wrapped with the operation description only.
func upstreamError(op string, err error) error {
	if fetch.IsExhausted(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
