/*
Copyright 2024 The PulseWave Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytepulseflow/pulsewave/pkg/carrier"
	"github.com/bytepulseflow/pulsewave/pkg/client"
	"github.com/bytepulseflow/pulsewave/pkg/config"
	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/bytepulseflow/pulsewave/pkg/profiling"
	"github.com/bytepulseflow/pulsewave/pkg/ratelimit"
	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/bytepulseflow/pulsewave/pkg/telemetry"
	"github.com/bytepulseflow/pulsewave/pkg/transport/pion"
	"github.com/bytepulseflow/pulsewave/pkg/webrtcext"
	"github.com/sirupsen/logrus"
	"github.com/thoas/go-funk"
	"go.opentelemetry.io/otel/attribute"
)

func main() {
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	deferred := []func(){}
	if *cpuProfile != "" {
		deferred = append(deferred, profiling.StartCPU(*cpuProfile))
	}
	if *memProfile != "" {
		deferred = append(deferred, profiling.CaptureHeap(*memProfile))
	}

	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	if cfg.Telemetry.Enabled() {
		shutdown, err := telemetry.Init(cfg.Telemetry)
		if err != nil {
			logrus.WithError(err).Fatal("could not set up telemetry")
		}
		deferred = append(deferred, func() {
			_ = shutdown(context.Background())
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	interrupt := make(chan os.Signal, 2)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Error("agent stopped")
	}

	for _, fn := range deferred {
		fn()
	}
}

// run connects to the signaling endpoint and drives a single connection
// until the context is cancelled or the carrier dies.
func run(ctx context.Context, cfg *config.Config) error {
	logger := logrus.NewEntry(logrus.StandardLogger())

	ws, err := carrier.Dial(ctx, cfg.SignalingURL, nil, logger)
	if err != nil {
		return err
	}
	defer ws.Close()

	// Throttle outbound frames with the same admission policy the server
	// enforces, so a misbehaving integration backs off before it gets
	// banned remotely.
	limiter := ratelimit.NewLimiter(cfg.RateLimitConfig(), logger)
	defer limiter.Close()

	send := func(ctx context.Context, frame any) error {
		if decision := limiter.Check(cfg.SignalingURL); !decision.Allowed {
			return domainerror.RateLimited(decision.RetryAfter.Milliseconds())
		}
		return ws.Send(ctx, frame)
	}

	factory, err := webrtcext.NewPeerConnectionFactory(cfg.WebRTC)
	if err != nil {
		return err
	}

	var c *client.Client

	listTracks := func() []string {
		if c == nil {
			return nil
		}
		tracks := []string{}
		for _, participant := range c.RemoteParticipants() {
			sids := funk.Map(participant.Tracks(), func(p *room.TrackPublication) string {
				return p.Sid()
			}).([]string)
			tracks = append(tracks, sids...)
		}
		return tracks
	}

	controller := pion.NewController(factory, send, listTracks, logger)
	c = client.NewClient(controller, send, cfg.ClientConfig(), logger)

	tracer := telemetry.NewTracer("pulsewave", attribute.String("endpoint", cfg.SignalingURL))
	span := tracer.Start(ctx, "connection")
	defer span.End(nil)
	c.SetTelemetry(span)

	// Attach arriving remote tracks to their publications.
	controller.OnTrack(func(track room.RemoteTrack) {
		for _, participant := range c.RemoteParticipants() {
			if publication := participant.GetTrack(track.ID()); publication != nil {
				publication.AttachTrack(track)
				return
			}
		}
		logger.WithField("track", track.ID()).Debug("no publication for arriving track")
	})

	for _, name := range []string{
		room.EventLocalParticipantJoined,
		room.EventParticipantJoined,
		room.EventParticipantLeft,
		room.EventTrackPublished,
		room.EventTrackUnpublished,
		room.EventDataReceived,
	} {
		eventName := name
		c.On(eventName, func(payload any) {
			logger.WithField("event", eventName).Infof("%+v", payload)
		})
	}

	go func() {
		if err := ws.Run(c.Inbound()); err != nil {
			logger.WithError(err).Info("carrier stopped")
		}
		c.Close()
	}()

	c.Run(ctx)
	return nil
}
