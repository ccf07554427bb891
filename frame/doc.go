// Package frame defines the binary form of a drained completion batch.
//
// Hosts that hand completions to the script engine through a single shared
// buffer encode each batch with EncodeBatch; the script side decodes it with
// the same layout. A frame that cannot be parsed is never a script error: it
// means the two sides disagree about the protocol, so DecodeBatch reports a
// dispatch fault.
package frame
