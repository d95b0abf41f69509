// Package nmea decodes NMEA-0183 GPS sentences from a raw byte stream.
//
// Bytes go into a Stream, which frames $...<CR> sentences, validates the XOR
// checksum and hands them to a Parser. The Parser decodes GGA, GLL, RMC and
// VTG into Events and keeps the last known date so that time-only sentences
// can be stamped.
//
// Numeric fields that are empty or malformed decode to Unknown (-1).
package nmea
