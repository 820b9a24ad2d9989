package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	ErrModuleNotFound     = errors.New("module not found")
	ErrInvalidModuleName  = errors.New("invalid module name")
	ErrInvalidHostPattern = errors.New("invalid host pattern")

	ErrInvalidMaxConnections = errors.New("max connections must not be negative")
)

// Module is a named tree the daemon exports.
type Module struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Comment string `json:"comment,omitempty"`

	// Listable modules show up in #list responses.
	Listable bool `json:"list"`
	ReadOnly bool `json:"readOnly"`

	// HostsAllow and HostsDeny are glob patterns ("10.0.*", "*.example.com")
	// matched against the client's address. Deny wins; an empty allow
	// list allows everyone not denied.
	HostsAllow []string `json:"hostsAllow,omitempty"`
	HostsDeny  []string `json:"hostsDeny,omitempty"`

	// AuthUsers lists the users allowed in. A non-empty list means the
	// module requires authentication.
	AuthUsers []string `json:"authUsers,omitempty"`

	// MaxConnections caps concurrent sessions on the module. Zero means
	// unlimited.
	MaxConnections int `json:"maxConnections,omitempty"`
}

// ValidateModuleName rejects names that can't be used as a catalog key or
// sent on a #list line.
func ValidateModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModuleName)
	}

	if strings.ContainsAny(name, "/[]|#@\\\t\n\r ") {
		return fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
	}

	return nil
}

func (m Module) Validate() error {
	if err := ValidateModuleName(m.Name); err != nil {
		return err
	}

	if m.MaxConnections < 0 {
		return fmt.Errorf("%w: module %s", ErrInvalidMaxConnections, m.Name)
	}

	for _, pattern := range append(append([]string(nil), m.HostsAllow...), m.HostsDeny...) {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("%w %q on module %s: %v", ErrInvalidHostPattern, pattern, m.Name, err)
		}
	}

	return nil
}

func (m Module) RequiresAuth() bool {
	return len(m.AuthUsers) > 0
}

// Permits reports whether a client at host may use the module.
func (m Module) Permits(host string) (bool, error) {
	denied, err := matchAny(m.HostsDeny, host)
	if err != nil {
		return false, err
	}

	if denied {
		return false, nil
	}

	if len(m.HostsAllow) == 0 {
		return true, nil
	}

	return matchAny(m.HostsAllow, host)
}

func matchAny(patterns []string, host string) (bool, error) {
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%w %q: %v", ErrInvalidHostPattern, pattern, err)
		}

		if g.Match(host) {
			return true, nil
		}
	}

	return false, nil
}
