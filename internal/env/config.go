package env

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/ferry/protocol"
	"github.com/luma/ferry/transport"
)

type Config struct {
	// Protocol is the newest protocol version the daemon offers.
	Protocol string `env:"FERRY_PROTOCOL,default=32"`

	// ModulesFile is a YAML file describing the exported modules.
	ModulesFile string `env:"FERRY_MODULES_FILE"`

	HandshakeTimeout time.Duration `env:"FERRY_HANDSHAKE_TIMEOUT,default=30s"`
	SessionWorkers   int           `env:"FERRY_SESSION_WORKERS,default=8"`
	SessionQueue     int           `env:"FERRY_SESSION_QUEUE,default=64"`

	// VersionByteOrder is "big" or "little".
	VersionByteOrder string `env:"FERRY_VERSION_BYTE_ORDER,default=big"`

	// CompatFlags are sent to binary clients, e.g. "CF_INC_RECURSE|CF_SYMLINK_TIMES".
	CompatFlags string `env:"FERRY_COMPAT_FLAGS"`

	// Digests is a space separated list appended to the legacy greeting.
	Digests string `env:"FERRY_DIGESTS"`

	LogLevel  string `env:"FERRY_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"FERRY_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("Failed to load .env.local: %w", err)
		}
	}

	return LoadConfigWith(ctx, envconfig.OsLookuper())
}

// LoadConfigWith reads the config from lookuper and validates it.
func LoadConfigWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if _, err := c.ProtocolVersion(); err != nil {
		return err
	}

	if _, err := c.ByteOrder(); err != nil {
		return err
	}

	if _, err := c.CompatibilityFlags(); err != nil {
		return err
	}

	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("FERRY_HANDSHAKE_TIMEOUT must be positive, got %s", c.HandshakeTimeout)
	}

	if c.SessionWorkers < 1 {
		return fmt.Errorf("FERRY_SESSION_WORKERS must be at least 1, got %d", c.SessionWorkers)
	}

	if c.SessionQueue < 1 {
		return fmt.Errorf("FERRY_SESSION_QUEUE must be at least 1, got %d", c.SessionQueue)
	}

	return nil
}

func (c *Config) ProtocolVersion() (protocol.ProtocolVersion, error) {
	v, err := protocol.ParseProtocolVersion(c.Protocol)
	if err != nil {
		return protocol.ProtocolVersion{}, fmt.Errorf("FERRY_PROTOCOL: %w", err)
	}

	return v, nil
}

func (c *Config) ByteOrder() (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(c.VersionByteOrder)) {
	case "", "big":
		return binary.BigEndian, nil
	case "little":
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("FERRY_VERSION_BYTE_ORDER must be big or little, got %q", c.VersionByteOrder)
	}
}

func (c *Config) CompatibilityFlags() (protocol.CompatibilityFlags, error) {
	if strings.TrimSpace(c.CompatFlags) == "" {
		return protocol.CompatNone, nil
	}

	flags, err := protocol.ParseCompatibilityFlags(c.CompatFlags)
	if err != nil {
		return protocol.CompatNone, fmt.Errorf("FERRY_COMPAT_FLAGS: %w", err)
	}

	return flags, nil
}

func (c *Config) DigestList() []string {
	return strings.Fields(c.Digests)
}

// HandshakeOptions builds the daemon's handshake settings. The config must
// have been validated.
func (c *Config) HandshakeOptions() transport.HandshakeOptions {
	version, _ := c.ProtocolVersion()
	order, _ := c.ByteOrder()
	flags, _ := c.CompatibilityFlags()

	return transport.HandshakeOptions{
		Role:               transport.RoleServer,
		Protocol:           version,
		ByteOrder:          order,
		CompatibilityFlags: flags,
		Digests:            c.DigestList(),
	}
}

// String is used when logging the config.
func (c *Config) String() string {
	return strings.Join([]string{
		"protocol=" + c.Protocol,
		"modules=" + c.ModulesFile,
		"handshakeTimeout=" + c.HandshakeTimeout.String(),
		"workers=" + strconv.Itoa(c.SessionWorkers),
		"queue=" + strconv.Itoa(c.SessionQueue),
		"byteOrder=" + c.VersionByteOrder,
		"compat=" + c.CompatFlags,
		"logLevel=" + c.LogLevel,
	}, " ")
}
