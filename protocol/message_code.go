package protocol

import (
	"fmt"
	"sort"
)

// MessageCode identifies the payload of a multiplexed frame.
type MessageCode uint8

const (
	MsgData        MessageCode = 0
	MsgErrorXfer   MessageCode = 1
	MsgInfo        MessageCode = 2
	MsgError       MessageCode = 3
	MsgWarning     MessageCode = 4
	MsgErrorSocket MessageCode = 5
	MsgLog         MessageCode = 6
	MsgClient      MessageCode = 7
	MsgErrorUTF8   MessageCode = 8
	MsgRedo        MessageCode = 9
	MsgStats       MessageCode = 10
	MsgIOError     MessageCode = 22
	MsgIOTimeout   MessageCode = 33
	MsgNoop        MessageCode = 42
	MsgErrorExit   MessageCode = 86
	MsgSuccess     MessageCode = 100
	MsgDeleted     MessageCode = 101
	MsgNoSend      MessageCode = 102

	// MsgFlush shares its value with MsgInfo.
	MsgFlush = MsgInfo
)

var messageCodeNames = map[MessageCode]string{
	MsgData:        "MSG_DATA",
	MsgErrorXfer:   "MSG_ERROR_XFER",
	MsgInfo:        "MSG_INFO",
	MsgError:       "MSG_ERROR",
	MsgWarning:     "MSG_WARNING",
	MsgErrorSocket: "MSG_ERROR_SOCKET",
	MsgLog:         "MSG_LOG",
	MsgClient:      "MSG_CLIENT",
	MsgErrorUTF8:   "MSG_ERROR_UTF8",
	MsgRedo:        "MSG_REDO",
	MsgStats:       "MSG_STATS",
	MsgIOError:     "MSG_IO_ERROR",
	MsgIOTimeout:   "MSG_IO_TIMEOUT",
	MsgNoop:        "MSG_NOOP",
	MsgErrorExit:   "MSG_ERROR_EXIT",
	MsgSuccess:     "MSG_SUCCESS",
	MsgDeleted:     "MSG_DELETED",
	MsgNoSend:      "MSG_NO_SEND",
}

// MessageCodes returns every known code in ascending order.
func MessageCodes() []MessageCode {
	codes := make([]MessageCode, 0, len(messageCodeNames))
	for code := range messageCodeNames {
		codes = append(codes, code)
	}

	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// MessageCodeFromUint8 maps a raw value onto a known code.
func MessageCodeFromUint8(v uint8) (MessageCode, error) {
	code := MessageCode(v)
	if _, ok := messageCodeNames[code]; !ok {
		return 0, &EnvelopeError{Kind: ErrUnknownMessageCode, Code: v}
	}

	return code, nil
}

// ParseMessageCode accepts the canonical MSG_ names plus the MSG_FLUSH
// alias.
func ParseMessageCode(name string) (MessageCode, error) {
	if name == "MSG_FLUSH" {
		return MsgFlush, nil
	}

	for code, n := range messageCodeNames {
		if n == name {
			return code, nil
		}
	}

	return 0, fmt.Errorf("unknown multiplexed message code name: %q", name)
}

func (c MessageCode) String() string {
	if name, ok := messageCodeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("MSG_UNKNOWN(%d)", uint8(c))
}

// IsLogging reports whether frames with this code carry log text.
func (c MessageCode) IsLogging() bool {
	switch c {
	case MsgErrorXfer, MsgInfo, MsgError, MsgWarning, MsgErrorSocket, MsgLog, MsgClient, MsgErrorUTF8:
		return true
	default:
		return false
	}
}

// AsLogCode maps a logging message code onto its log code.
func (c MessageCode) AsLogCode() (LogCode, error) {
	if !c.IsLogging() {
		return 0, &LogCodeConversionError{Message: c, HasMessage: true}
	}

	return LogCode(c), nil
}

// LogCode is the severity attached to log output, mirroring the logging
// message codes.
type LogCode uint8

const (
	LogNone        LogCode = 0
	LogErrorXfer   LogCode = 1
	LogInfo        LogCode = 2
	LogError       LogCode = 3
	LogWarning     LogCode = 4
	LogErrorSocket LogCode = 5
	LogLog         LogCode = 6
	LogClient      LogCode = 7
	LogErrorUTF8   LogCode = 8
)

var logCodeNames = []string{
	"FNONE",
	"FERROR_XFER",
	"FINFO",
	"FERROR",
	"FWARNING",
	"FERROR_SOCKET",
	"FLOG",
	"FCLIENT",
	"FERROR_UTF8",
}

func LogCodes() []LogCode {
	codes := make([]LogCode, len(logCodeNames))
	for i := range logCodeNames {
		codes[i] = LogCode(i)
	}
	return codes
}

func LogCodeFromUint8(v uint8) (LogCode, error) {
	if int(v) >= len(logCodeNames) {
		return 0, fmt.Errorf("unknown log code value: %d", v)
	}

	return LogCode(v), nil
}

func ParseLogCode(name string) (LogCode, error) {
	for i, n := range logCodeNames {
		if n == name {
			return LogCode(i), nil
		}
	}

	return 0, fmt.Errorf("unknown log code name: %q", name)
}

func (l LogCode) String() string {
	if int(l) < len(logCodeNames) {
		return logCodeNames[l]
	}

	return fmt.Sprintf("FUNKNOWN(%d)", uint8(l))
}

// AsMessageCode maps a log code onto the message code that carries it.
// FNONE has no equivalent.
func (l LogCode) AsMessageCode() (MessageCode, error) {
	if l == LogNone || int(l) >= len(logCodeNames) {
		return 0, &LogCodeConversionError{Log: l}
	}

	return MessageCode(l), nil
}

// LogCodeConversionError names the code that has no counterpart.
type LogCodeConversionError struct {
	Log     LogCode
	Message MessageCode

	// HasMessage is true when the conversion started from a message code.
	HasMessage bool
}

func (e *LogCodeConversionError) Error() string {
	if e.HasMessage {
		return fmt.Sprintf("message code %s has no log code equivalent", e.Message)
	}

	return fmt.Sprintf("log code %s has no message code equivalent", e.Log)
}
