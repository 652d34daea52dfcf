package nrfconfig

import (
	"fmt"

	yaml "gopkg.in/yaml.v2"
)

// Log forwarder sidecar layout.
const (
	ForwarderConfigPath     = "/etc/promtail"
	ForwarderConfigFileName = "promtail.yaml"
)

// forwarderConfig mirrors the promtail configuration consumed by the log
// forwarder sidecar. Only the subset the operator renders is modeled.
type forwarderConfig struct {
	Server        forwarderServer   `yaml:"server"`
	Positions     forwarderPosition `yaml:"positions"`
	Clients       []forwarderClient `yaml:"clients"`
	ScrapeConfigs []scrapeConfig    `yaml:"scrape_configs"`
}

type forwarderServer struct {
	Disable bool `yaml:"disable"`
}

type forwarderPosition struct {
	Filename string `yaml:"filename"`
}

type forwarderClient struct {
	URL string `yaml:"url"`
}

type scrapeConfig struct {
	JobName       string         `yaml:"job_name"`
	StaticConfigs []staticConfig `yaml:"static_configs"`
}

type staticConfig struct {
	Targets []string          `yaml:"targets"`
	Labels  map[string]string `yaml:"labels"`
}

// RenderLogForwarder produces the promtail sidecar configuration shipping
// workload logs to the given Loki push endpoint.
func RenderLogForwarder(lokiURL, instance, namespace string) (string, error) {
	cfg := forwarderConfig{
		Server: forwarderServer{
			// The sidecar only pushes; it serves nothing.
			Disable: true,
		},
		Positions: forwarderPosition{
			Filename: "/tmp/positions.yaml",
		},
		Clients: []forwarderClient{
			{URL: lokiURL},
		},
		ScrapeConfigs: []scrapeConfig{
			{
				JobName: "nrf",
				StaticConfigs: []staticConfig{
					{
						Targets: []string{"localhost"},
						Labels: map[string]string{
							"job":       "nrf",
							"instance":  instance,
							"namespace": namespace,
							"__path__":  "/var/log/nrf/*.log",
						},
					},
				},
			},
		},
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal log forwarder config: %w", err)
	}
	return string(out), nil
}
