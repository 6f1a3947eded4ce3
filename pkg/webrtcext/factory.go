package webrtcext

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// Header extensions the client must negotiate for the SFU to identify
// simulcast layers by RID.
var simulcastExtensionURIs = []string{
	"urn:ietf:params:rtp-hdrext:sdes:mid",
	"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id",
	"urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id",
}

// PeerConnectionFactory constructs peer connections from one shared,
// fully-configured pion API: default codecs, the simulcast extensions when
// enabled, the default interceptor pipeline (NACKs, RTCP reports) and the
// resolved ICE configuration.
type PeerConnectionFactory struct {
	api       *webrtc.API
	rtcConfig webrtc.Configuration
}

func NewPeerConnectionFactory(config Config) (*PeerConnectionFactory, error) {
	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register default codecs: %w", err)
	}

	if config.EnableSimulcast {
		for _, uri := range simulcastExtensionURIs {
			capability := webrtc.RTPHeaderExtensionCapability{URI: uri}
			if err := engine.RegisterHeaderExtension(capability, webrtc.RTPCodecTypeVideo); err != nil {
				return nil, fmt.Errorf("failed to register %s: %w", uri, err)
			}
		}
	}

	// A manually constructed API starts with an empty interceptor
	// pipeline; the defaults have to be registered explicitly.
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	factory := &PeerConnectionFactory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(engine),
			webrtc.WithInterceptorRegistry(registry),
		),
	}
	for _, server := range config.STUNServers {
		factory.rtcConfig.ICEServers = append(factory.rtcConfig.ICEServers, webrtc.ICEServer{
			URLs: []string{server},
		})
	}

	return factory, nil
}

// CreatePeerConnection returns a new peer connection on the factory's API.
func (f *PeerConnectionFactory) CreatePeerConnection() (*webrtc.PeerConnection, error) {
	return f.api.NewPeerConnection(f.rtcConfig)
}
