// Package opus feeds real-time Opus sources into genx streams.
//
// Each chunk carries one Opus packet with MIMEType "audio/opus". Packets are
// never decoded: durations come from the TOC byte, and gaps are filled with
// a canned silence packet.
//
// # Input Sources
//
//   - FromStampedReader: stamped wire frames (below)
//   - FromRTP: RTP datagrams with a 48kHz clock
//
// # Wire Format
//
// The StampedOpusReader interface expects data in the following format:
//
//	+--------+------------------+------------------+
//	| Version| Timestamp (7B)   | Opus Frame Data  |
//	| (1B)   | Big-endian ms    |                  |
//	+--------+------------------+------------------+
//
// Total header: 8 bytes
package opus
