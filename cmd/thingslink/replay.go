package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"thingslink/internal/capture"
	"thingslink/internal/config"
	"thingslink/internal/gps"
	"thingslink/internal/hdlc"
)

type replayResult struct {
	Chunks int
	Frames int
	Errors int
}

// runReplay plays a capture log through the decoder of its link instead of
// a live device.
func runReplay(ctx context.Context, cfg config.Config, sleeper capture.Sleeper, h *frameHandler) (replayResult, error) {
	var res replayResult
	if h == nil {
		return res, fmt.Errorf("frame handler is nil")
	}

	recs, err := capture.ReadFile(cfg.Replay.Path)
	if err != nil {
		return res, err
	}
	log.Printf("replay enabled link=%s path=%s speed=%.2f loop=%t records=%d", cfg.Replay.Link, cfg.Replay.Path, cfg.Replay.Speed, cfg.Replay.Loop, len(recs))

	switch cfg.Replay.Link {
	case config.LinkGPS:
		return replayGPS(ctx, cfg, recs, sleeper, h)
	case config.LinkLowpan, "":
		return replayLowpan(ctx, cfg, recs, sleeper, h)
	default:
		return res, fmt.Errorf("replay: unknown link %q", cfg.Replay.Link)
	}
}

func replayLowpan(ctx context.Context, cfg config.Config, recs []capture.Record, sleeper capture.Sleeper, h *frameHandler) (replayResult, error) {
	var res replayResult
	dec := hdlc.NewDecoder(cfg.Lowpan.MaxFrame)

	err := capture.Play(recs, cfg.Replay.Speed, cfg.Replay.Loop, sleeper, func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Chunks++
		for _, b := range chunk {
			frame, ok, ferr := dec.Process(b)
			if ferr != nil {
				res.Errors++
				log.Printf("replay dropped frame: %v", ferr)
				continue
			}
			if ok {
				res.Frames++
				h.lowpanFrame(frame)
			}
		}
		return nil
	})
	return res, err
}

func replayGPS(ctx context.Context, cfg config.Config, recs []capture.Record, sleeper capture.Sleeper, h *frameHandler) (replayResult, error) {
	var res replayResult
	svc := gps.New(gps.Config{Enable: true, Debug: cfg.Debug})
	svc.SetListener(h.gpsSnapshot)
	if h.status != nil {
		h.status.SetGPS(svc.Snapshot)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := svc.Run(ctx, pr, gps.Snapshot{Enabled: true, Source: "replay", Device: cfg.Replay.Path})
		_ = pr.CloseWithError(err)
		done <- err
	}()

	err := capture.Play(recs, cfg.Replay.Speed, cfg.Replay.Loop, sleeper, func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Chunks++
		_, err := pw.Write(chunk)
		return err
	})
	_ = pw.Close()
	<-done

	snap := svc.Snapshot()
	res.Frames = int(snap.Sentences)
	res.Errors = int(snap.Rejected)
	return res, err
}
