package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"thingslink/internal/capture"
	"thingslink/internal/config"
	"thingslink/internal/hdlc"
	"thingslink/internal/nmea"
	"thingslink/internal/spinel"
)

type captureSummary struct {
	Segments    int
	Chunks      int
	Bytes       int
	Frames      int
	Invalid     int
	MaxDuration time.Duration
	// Kinds counts Spinel commands ("cmd 0x06") or NMEA sentence ids.
	Kinds map[string]int
}

// summarizeCapture decodes a capture offline. Unlike the live paths it never
// sleeps and keeps going past every error.
func summarizeCapture(records []capture.Record, link string) (captureSummary, error) {
	s := captureSummary{Kinds: map[string]int{}}

	var feed func(chunk []byte)
	switch link {
	case config.LinkLowpan, "":
		dec := hdlc.NewDecoder(0)
		feed = func(chunk []byte) {
			for _, b := range chunk {
				frame, ok, err := dec.Process(b)
				if err != nil {
					s.Invalid++
					continue
				}
				if !ok {
					continue
				}
				s.Frames++
				var f spinel.Frame
				if err := f.UnmarshalBinary(frame); err != nil {
					s.Kinds["non-spinel"]++
					continue
				}
				s.Kinds[fmt.Sprintf("cmd 0x%02X", f.Command)]++
			}
		}
	case config.LinkGPS:
		var line []byte
		feed = func(chunk []byte) {
			for _, b := range chunk {
				if b != '\n' {
					line = append(line, b)
					continue
				}
				text := strings.TrimSpace(string(line))
				line = line[:0]
				if text == "" {
					continue
				}
				sen, err := nmea.ParseSentence(text)
				if err != nil {
					s.Invalid++
					continue
				}
				s.Frames++
				s.Kinds[sen.ID]++
			}
		}
	default:
		return s, fmt.Errorf("unknown link %q", link)
	}

	origin := time.Duration(0)
	hasChunks := false
	segments := 0
	for _, r := range records {
		if r.Chunk == nil {
			segments++
			origin = r.At
			continue
		}
		hasChunks = true
		s.Chunks++
		s.Bytes += len(r.Chunk)
		if at := r.At - origin; at > s.MaxDuration {
			s.MaxDuration = at
		}
		feed(r.Chunk)
	}
	if segments == 0 && hasChunks {
		segments = 1
	}
	s.Segments = segments
	return s, nil
}

func printCaptureSummary(w io.Writer, path, link string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := capture.ReadFile(path)
	if err != nil {
		return err
	}
	link = strings.ToLower(strings.TrimSpace(link))
	s, err := summarizeCapture(recs, link)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "link: %s\n", link)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "chunks: %d\n", s.Chunks)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "frames: %d\n", s.Frames)
	fmt.Fprintf(w, "invalid_frames: %d\n", s.Invalid)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	keys := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "kinds:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.Kinds[k])
	}
	return nil
}
