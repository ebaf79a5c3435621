package handler

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/service/relay"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// frameAssembler rebuilds JPEG frames from UDP datagrams, one buffer per camera.
type frameAssembler struct {
	buffers  map[string]*bytes.Buffer
	maxBytes int
}

func newFrameAssembler(maxBytes int) *frameAssembler {
	return &frameAssembler{
		buffers:  make(map[string]*bytes.Buffer),
		maxBytes: maxBytes,
	}
}

// Feed appends a datagram and returns a copy of the frame once its end marker arrives.
// A start marker discards any partial frame; oversized frames are dropped.
func (a *frameAssembler) Feed(camera string, data []byte) ([]byte, bool) {
	imgBuffer, ok := a.buffers[camera]
	if !ok {
		imgBuffer = new(bytes.Buffer)
		a.buffers[camera] = imgBuffer
	}

	if bytes.HasPrefix(data, jpegHeader) {
		imgBuffer.Reset()
	} else if imgBuffer.Len() == 0 {
		// mid-frame datagram with no header seen yet
		return nil, false
	}
	imgBuffer.Write(data)

	if a.maxBytes > 0 && imgBuffer.Len() > a.maxBytes {
		imgBuffer.Reset()
		return nil, false
	}

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false
	}

	fullFrame := make([]byte, imgBuffer.Len())
	copy(fullFrame, imgBuffer.Bytes())
	imgBuffer.Reset()
	return fullFrame, true
}

// cameraName maps a sender IP to its configured name.
func cameraName(cfg *config.Config, addr *net.UDPAddr) string {
	ip := addr.IP.String()
	if name, exists := cfg.CameraNames[ip]; exists {
		return name
	}
	return "unknown_" + ip
}

// UDPCameraHandler listens for UDP packets from cameras, reconstructs JPEG frames,
// and stores complete frames in the relay as data URLs. It returns when ctx is done.
func UDPCameraHandler(ctx context.Context, frames *relay.RelayService, logger *logger.Logger, cfg *config.Config) error {
	port := strconv.Itoa(cfg.CamerasPort)

	addr, err := net.ResolveUDPAddr("udp", ":"+port)
	if err != nil {
		logger.Error("Failed to resolve UDP address: %v", err)
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Error("Failed to listen on UDP port %s: %v", port, err)
		return err
	}

	return serveCameraConn(ctx, conn, frames, logger, cfg)
}

func serveCameraConn(ctx context.Context, conn *net.UDPConn, frames *relay.RelayService, logger *logger.Logger, cfg *config.Config) error {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Info("UDP Camera handler started on %s", conn.LocalAddr())
	buffer := make([]byte, 65535)
	assembler := newFrameAssembler(int(cfg.MaxFrameBytes))

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("UDP Camera handler stopped")
				return nil
			}
			logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		camera := cameraName(cfg, remoteAddr)
		fullFrame, complete := assembler.Feed(camera, buffer[:n])
		if !complete {
			continue
		}

		payload := relay.EncodeDataURL("image/jpeg", fullFrame)
		if err := frames.Put(camera, payload, time.Now()); err != nil {
			logger.Warning("Dropping frame from camera %s: %v", camera, err)
		}
	}
}
