package protocol

import (
	"fmt"
	"io"
	"strings"
)

var (
	OkLine   = []byte(LegacyDaemonPrefix + " " + legacyOK + "\n")
	ExitLine = []byte(LegacyDaemonPrefix + " " + legacyExit + "\n")
	Terminal = []byte("\n")
)

func WriteLegacyGreeting(w io.Writer, version ProtocolVersion, digests ...string) error {
	_, err := io.WriteString(w, FormatLegacyDaemonGreeting(version, digests...))
	return err
}

func WriteLegacyOK(w io.Writer) error {
	_, err := w.Write(OkLine)
	return err
}

func WriteLegacyExit(w io.Writer) error {
	_, err := w.Write(ExitLine)
	return err
}

func WriteLegacyError(w io.Writer, errMsg string) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", legacyErrorPrefix, errMsg)
	return err
}

func WriteLegacyWarning(w io.Writer, msg string) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", legacyWarningPrefix, msg)
	return err
}

func WriteLegacyAuthRequired(w io.Writer, challenge string) error {
	_, err := fmt.Fprintf(w, "%s %s %s\n", LegacyDaemonPrefix, legacyAuthRequired, challenge)
	return err
}

func WriteLegacyCapabilities(w io.Writer, caps ...string) error {
	_, err := fmt.Fprintf(w, "%s %s %s\n", LegacyDaemonPrefix, legacyCapabilities, strings.Join(caps, " "))
	return err
}

// WriteLegacyLine writes line followed by a newline.
func WriteLegacyLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}

// WriteLegacyLines writes every line in a single Write call.
func WriteLegacyLines(w io.Writer, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// FormatModuleListing renders one entry of a #list response.
func FormatModuleListing(name, comment string) string {
	return fmt.Sprintf("%-15s\t%s", name, comment)
}
