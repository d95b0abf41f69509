// Package gps runs the GPS receiver link: it reads NMEA bytes from a serial
// receiver (or from gpsd's raw NMEA feed), decodes them with package nmea and
// keeps a snapshot of the latest fix.
package gps
