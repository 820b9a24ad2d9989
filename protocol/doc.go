package protocol

// This package implements the parsing and serialising of the rsync wire
// protocol pieces that ferry needs before any file data moves.
//
// It deliberately does no I/O of its own beyond reading from and writing to
// the io.Reader/io.Writer it is handed. Owning connections, deadlines and
// goroutines is the job of the transport package.
//
// - `ProtocolVersion` - A protocol version in the supported range (28..32).
// - `Sniffer` - Works out which handshake a peer speaks from its first bytes
//               and keeps those bytes around for replay.
// - `LegacyDaemonGreeting` - The parsed `@RSYNCD:` text greeting.
// - `CompatibilityFlags` - The bitset a daemon sends after a binary handshake.
// - `MessageHeader` / `MessageFrame` - The multiplexed envelope used once a
//                                      session is established.
//
// === Telling the handshakes apart
//
// Pre-30 peers, and every peer talking to an rsync daemon over TCP, open with
// a text line:
//
//   ```
//     @RSYNCD: 31.0 sha512 sha256 sha1 md5 md4\n
//   ```
//
// Binary peers open with a raw 4 byte protocol number instead. The first byte
// decides: anything but '@' is binary. A leading '@' is only reported as
// legacy once all eight bytes of `@RSYNCD:` have been seen, so a decision is
// never made on a partial prefix.
//
// === Legacy exchange
//
// - lines are `\n` delimited, a `\r` before the `\n` is tolerated
// - `#list` asks for the module listing, any other line selects a module
// - the daemon answers with `@RSYNCD: OK`, `@RSYNCD: EXIT`,
//   `@RSYNCD: AUTHREQD <challenge>`, `@ERROR: <msg>` or `@WARNING: <msg>`
//
// === Multiplexed envelope
//
// Every frame starts with a little-endian uint32. The top byte is
// MPLEX_BASE (7) plus the message code, the low 24 bits are the payload
// length:
//
//   ```
//     MSG_INFO, 5 bytes  => 05 00 00 09
//   ```
