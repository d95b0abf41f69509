package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"thingslink/internal/capture"
	"thingslink/internal/config"
	"thingslink/internal/gps"
	"thingslink/internal/lowpan"
	"thingslink/internal/serialport"
	"thingslink/internal/spinel"
	"thingslink/internal/syncutil"
	"thingslink/internal/udp"
	"thingslink/internal/web"
)

type openPortFunc func(serialport.Config) (io.ReadWriteCloser, string, error)

// publisher is the subset of udp.Publisher the runtime forwards to.
type publisher interface {
	Publish(kind string, v any) error
	PublishFrame(link string, frame []byte) error
}

// frameHandler is the sink for everything decoded, live or replayed.
type frameHandler struct {
	debug  bool
	pub    publisher
	status *web.Status

	mu        syncutil.Mutex
	frames    uint64
	nonSpinel uint64
	snapshots uint64
	last      gps.Snapshot
}

func (h *frameHandler) lowpanFrame(frame []byte) {
	h.mu.Lock()
	h.frames++
	h.mu.Unlock()

	var f spinel.Frame
	if err := f.UnmarshalBinary(frame); err != nil {
		h.mu.Lock()
		h.nonSpinel++
		h.mu.Unlock()
		log.Printf("lowpan non-spinel frame len=%d: %v", len(frame), err)
	} else {
		if h.debug {
			log.Printf("lowpan frame iid=%d tid=%d cmd=%d len=%d", f.Header.IID, f.Header.TID, f.Command, len(f.Payload))
		}
		if f.Command == spinel.CmdPropValueIs {
			if prop, value, err := f.Prop(); err == nil && prop == spinel.PropLastStatus {
				log.Printf("lowpan ncp last_status % X", value)
			}
		}
	}

	published := false
	if h.pub != nil {
		if err := h.pub.PublishFrame(config.LinkLowpan, frame); err != nil {
			log.Printf("udp publish frame failed: %v", err)
		} else {
			published = true
		}
	}
	if h.status != nil {
		h.status.MarkFrame(published)
	}
}

func (h *frameHandler) gpsSnapshot(snap gps.Snapshot) {
	h.mu.Lock()
	h.snapshots++
	h.last = snap
	h.mu.Unlock()

	if h.pub != nil {
		if err := h.pub.Publish("gps", snap); err != nil {
			log.Printf("udp publish gps failed: %v", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, openPort openPortFunc) error {
	h := &frameHandler{debug: cfg.Debug, status: web.NewStatus()}
	if cfg.UDP.Dest != "" {
		pub, err := udp.NewPublisher(cfg.UDP.Dest)
		if err != nil {
			return fmt.Errorf("udp publisher init failed: %w", err)
		}
		defer pub.Close()
		h.pub = pub
		log.Printf("udp dest=%s", cfg.UDP.Dest)
	}

	if cfg.Web.Listen != "" {
		webCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := web.ListenAndServe(webCtx, cfg.Web.Listen, web.Handler(h.status)); err != nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	if cfg.Replay.Enable {
		h.status.SetMode("replay")
		res, err := runReplay(ctx, cfg, nil, h)
		log.Printf("replay done link=%s chunks=%d frames=%d errors=%d", cfg.Replay.Link, res.Chunks, res.Frames, res.Errors)
		return err
	}
	h.status.SetMode("live")
	return runLive(ctx, cfg, h, openPort)
}

func runLive(ctx context.Context, cfg config.Config, h *frameHandler, openPort openPortFunc) error {
	if !cfg.GPS.Enable && !cfg.Lowpan.Enable {
		return fmt.Errorf("nothing to do: enable gps, lowpan or replay")
	}

	var rec *capture.Writer
	if cfg.Capture.Enable {
		w, err := capture.CreateWriter(cfg.Capture.Path)
		if err != nil {
			return fmt.Errorf("capture open failed: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Printf("capture close failed: %v", err)
			}
		}()
		rec = w
		log.Printf("capture enabled link=%s path=%s", cfg.Capture.Link, cfg.Capture.Path)
	}

	if cfg.GPS.Enable {
		svc := gps.New(gps.Config{
			Enable:   true,
			Source:   cfg.GPS.Source,
			GPSDAddr: cfg.GPS.GPSDAddr,
			Device:   cfg.GPS.Device,
			Baud:     cfg.GPS.Baud,
			Backend:  cfg.GPS.Backend,
			Debug:    cfg.Debug,
		})
		svc.SetOpenSerial(openPort)
		svc.SetListener(h.gpsSnapshot)
		if h.status != nil {
			h.status.SetGPS(svc.Snapshot)
		}
		if rec != nil && cfg.Capture.Link == config.LinkGPS {
			svc.SetRecorder(rec)
		}
		if err := svc.Start(ctx); err != nil {
			// Keep the lowpan side running without a fix.
			log.Printf("gps start failed: %v", err)
		}
		defer svc.Close()
	}

	if cfg.Lowpan.Enable {
		tr := newTransport(cfg, openPort)
		if rec != nil && cfg.Capture.Link == config.LinkLowpan {
			tr.SetRecorder(rec)
		}
		if h.status != nil {
			h.status.SetLowpan(tr.Stats)
		}
		if err := tr.Start(ctx); err != nil {
			return fmt.Errorf("lowpan start failed: %w", err)
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			for frame := range tr.Frames() {
				h.lowpanFrame(frame)
			}
		}()
		defer func() {
			tr.Close()
			<-done
			log.Printf("lowpan stats %+v", tr.Stats())
		}()
		log.Printf("lowpan enabled device=%s baud=%d backend=%s", cfg.Lowpan.Device, cfg.Lowpan.Baud, cfg.Lowpan.Backend)
	}

	<-ctx.Done()
	return nil
}

func newTransport(cfg config.Config, openPort openPortFunc) *lowpan.Transport {
	lc := cfg.Lowpan
	return lowpan.New(lowpan.Config{
		Name:         "lowpan",
		ResetGPIO:    lc.ResetGPIO,
		ResetPulse:   lc.ResetPulse,
		ReconnectMin: lc.ReconnectMin,
		ReconnectMax: lc.ReconnectMax,
		MaxFrame:     lc.MaxFrame,
		SoftReset:    lc.SoftReset,
		Debug:        cfg.Debug,
	}, func() (io.ReadWriteCloser, error) {
		port, _, err := openPort(serialport.Config{Device: lc.Device, Baud: lc.Baud, Backend: lc.Backend})
		return port, err
	})
}
