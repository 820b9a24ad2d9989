package cmd

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/luma/ferry/client"
	"github.com/luma/ferry/protocol"
)

// Flags shared by the commands that connect to a daemon.
var (
	clientProtocol  string
	clientBinary    bool
	clientLittle    bool
	clientTimeout   time.Duration
	clientVerbosity string
)

func addClientFlags(flags *pflag.FlagSet) {
	flags.StringVar(&clientProtocol, "protocol", protocol.Newest.String(), "The newest protocol version to offer")
	flags.BoolVar(&clientBinary, "binary", false, "Open with a binary advertisement instead of an @RSYNCD: greeting")
	flags.BoolVar(&clientLittle, "little-endian", false, "Send the binary advertisement little-endian")
	flags.DurationVar(&clientTimeout, "timeout", 30*time.Second, "Give up after this long")
	flags.StringVar(&clientVerbosity, "log-level", "warn", "Log level for daemon messages")
}

func clientOptions() (client.Options, error) {
	version, err := protocol.ParseProtocolVersion(clientProtocol)
	if err != nil {
		return client.Options{}, fmt.Errorf("--protocol: %w", err)
	}

	options := client.Options{Protocol: version, Prologue: protocol.LegacyASCII}

	if clientBinary {
		options.Prologue = protocol.Binary
	}

	if clientLittle {
		options.ByteOrder = binary.LittleEndian
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(clientVerbosity)); err != nil {
		return client.Options{}, fmt.Errorf("--log-level: %w", err)
	}

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = level

	options.Log, err = logConfig.Build()
	if err != nil {
		return client.Options{}, err
	}

	return options, nil
}
