// Package input turns real-time media sources into genx.Stream.
//
// Sources deliver timestamped frames through StampedReader, possibly out of
// order. NewStampedStream reorders them in a JitterBuffer, drops frames that
// arrive after the stream has moved past them, and optionally fills small
// gaps with silence. RTPReader is a StampedReader over RTP datagrams.
//
// # Subpackages
//
//   - input/opus: Opus packet framing and silence for stamped streams
package input
