package nrfconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	yaml "gopkg.in/yaml.v2"
)

// Filesystem layout inside the workload container. The certificate paths are
// hardcoded in the NRF image and must not change.
const (
	BaseConfigPath = "/etc/nrf"
	ConfigFileName = "nrfcfg.yaml"

	CertsDirPath    = "/support/TLS"
	CertificateName = "nrf.pem"
	PrivateKeyName  = "nrf.key"
)

// Inputs is the fully negotiated state a config rendering is derived from.
// It is rebuilt from scratch on every reconciliation, never mutated in place.
type Inputs struct {
	// DatabaseURI is the first MongoDB connection string from the database
	// integration.
	DatabaseURI string

	// DatabaseName is the logical database name.
	DatabaseName string

	// WebUIURL is the shared core configuration service endpoint.
	WebUIURL string

	// Host is the hostname the NRF registers on the SBI.
	Host string

	// SBIPort is the service-based interface port.
	SBIPort int32

	// Scheme is the SBI scheme, http or https.
	Scheme string

	// LogLevel is the workload log verbosity.
	LogLevel string
}

// config mirrors the nrfcfg.yaml structure consumed by the NRF image.
type config struct {
	Info          info          `yaml:"info"`
	Configuration configuration `yaml:"configuration"`
	Logger        logger        `yaml:"logger"`
}

type info struct {
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type configuration struct {
	MongoDBName     string   `yaml:"MongoDBName"`
	MongoDBURL      string   `yaml:"MongoDBUrl"`
	WebUIURI        string   `yaml:"webuiUri"`
	SBI             sbi      `yaml:"sbi"`
	ServiceNameList []string `yaml:"serviceNameList"`
}

type sbi struct {
	Scheme       string `yaml:"scheme"`
	RegisterIPv4 string `yaml:"registerIPv4"`
	BindingIPv4  string `yaml:"bindingIPv4"`
	Port         int32  `yaml:"port"`
	TLS          tls    `yaml:"tls"`
}

type tls struct {
	PEM string `yaml:"pem"`
	Key string `yaml:"key"`
}

type logger struct {
	NRF loggerEntry `yaml:"NRF"`
}

type loggerEntry struct {
	DebugLevel   string `yaml:"debugLevel"`
	ReportCaller bool   `yaml:"ReportCaller"`
}

// Render produces the nrfcfg.yaml content for the given inputs.
func Render(in Inputs) (string, error) {
	cfg := config{
		Info: info{
			Version:     "1.0.0",
			Description: "NRF initial local configuration",
		},
		Configuration: configuration{
			MongoDBName: in.DatabaseName,
			MongoDBURL:  in.DatabaseURI,
			WebUIURI:    in.WebUIURL,
			SBI: sbi{
				Scheme:       in.Scheme,
				RegisterIPv4: in.Host,
				BindingIPv4:  "0.0.0.0",
				Port:         in.SBIPort,
				TLS: tls{
					PEM: CertsDirPath + "/" + CertificateName,
					Key: CertsDirPath + "/" + PrivateKeyName,
				},
			},
			ServiceNameList: []string{"nnrf-nfm", "nnrf-disc"},
		},
		Logger: logger{
			NRF: loggerEntry{
				DebugLevel:   in.LogLevel,
				ReportCaller: false,
			},
		},
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal NRF config: %w", err)
	}
	return string(out), nil
}

// Hash returns the hex-encoded SHA-256 of rendered content. The controller
// stamps it onto the pod template so the workload restarts exactly when the
// configuration changes.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
