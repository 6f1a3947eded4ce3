package telemetry

type OTLP struct {
	// Host of the OTLP collector, without protocol or path.
	Host string `yaml:"host"`
	// Whether to use TLS when talking to the collector.
	Secure bool `yaml:"secure"`
}

type Config struct {
	// OTLP collector configuration. Takes precedence over Jaeger.
	OTLP OTLP `yaml:"otlp"`
	// The URL of a Jaeger collector endpoint.
	JaegerURL string `yaml:"jaegerUrl"`
	// The service name to use for the telemetry.
	Service string `yaml:"service"`
	// ID of the service instance.
	ID string `yaml:"id"`
}

// Enabled reports whether any exporter is configured.
func (c Config) Enabled() bool {
	return c.OTLP.Host != "" || c.JaegerURL != ""
}
