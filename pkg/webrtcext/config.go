package webrtcext

// Config of the WebRTC API used by the client transport.
type Config struct {
	// Enable the simulcast header extensions.
	EnableSimulcast bool `yaml:"simulcast"`
	// STUN servers for ICE gathering.
	STUNServers []string `yaml:"stunServers"`
}
