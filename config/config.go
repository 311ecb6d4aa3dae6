// Package config loads the bridge configuration from a TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Remote describes the archive the bridge talks to.
type Remote struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	AETitle string `toml:"ae_title"`
}

// Address returns the host:port dial address.
func (r Remote) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Local describes this bridge's application entity.
type Local struct {
	AETitle string `toml:"ae_title"`
}

// HTTP holds the API listener settings.
type HTTP struct {
	ListenAddr     string   `toml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Timeouts holds association and operation timeouts in seconds.
type Timeouts struct {
	Connect int `toml:"connect"`
	Read    int `toml:"read"`
	Write   int `toml:"write"`
}

// Metadata holds the archive-specific reconciliation defaults.
type Metadata struct {
	IssuerOfPatientIDDefault string `toml:"issuer_of_patient_id_default"`
	PatientIDDefault         string `toml:"patient_id_default"`
}

// Config is the full bridge configuration.
type Config struct {
	Remote   Remote   `toml:"remote"`
	Local    Local    `toml:"local"`
	HTTP     HTTP     `toml:"http"`
	Timeouts Timeouts `toml:"timeouts"`
	Metadata Metadata `toml:"metadata"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() Config {
	return Config{
		Remote: Remote{
			Host:    "127.0.0.1",
			Port:    11112,
			AETitle: "DCM4CHEE",
		},
		Local: Local{
			AETitle: "PACSBRIDGE",
		},
		HTTP: HTTP{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
		},
		Timeouts: Timeouts{
			Connect: 30,
			Read:    60,
			Write:   60,
		},
		Metadata: Metadata{
			IssuerOfPatientIDDefault: "DCM4CHEE",
			PatientIDDefault:         "1",
		},
	}
}

// Load reads the configuration: defaults, then the TOML file at path if
// it exists, then environment overrides. A missing file is not an error;
// a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// No file: defaults plus environment.
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays PACSBRIDGE_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Remote.Host, "PACSBRIDGE_REMOTE_HOST")
	setInt(&cfg.Remote.Port, "PACSBRIDGE_REMOTE_PORT")
	setString(&cfg.Remote.AETitle, "PACSBRIDGE_REMOTE_AE_TITLE")
	setString(&cfg.Local.AETitle, "PACSBRIDGE_LOCAL_AE_TITLE")
	setString(&cfg.HTTP.ListenAddr, "PACSBRIDGE_HTTP_LISTEN_ADDR")
	setInt(&cfg.Timeouts.Connect, "PACSBRIDGE_TIMEOUT_CONNECT")
	setInt(&cfg.Timeouts.Read, "PACSBRIDGE_TIMEOUT_READ")
	setInt(&cfg.Timeouts.Write, "PACSBRIDGE_TIMEOUT_WRITE")
	setString(&cfg.Metadata.IssuerOfPatientIDDefault, "PACSBRIDGE_ISSUER_DEFAULT")
	setString(&cfg.Metadata.PatientIDDefault, "PACSBRIDGE_PATIENT_ID_DEFAULT")
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// ConnectTimeout returns the connect timeout as a duration.
func (t Timeouts) ConnectTimeout() time.Duration { return time.Duration(t.Connect) * time.Second }

// ReadTimeout returns the read timeout as a duration.
func (t Timeouts) ReadTimeout() time.Duration { return time.Duration(t.Read) * time.Second }

// WriteTimeout returns the write timeout as a duration.
func (t Timeouts) WriteTimeout() time.Duration { return time.Duration(t.Write) * time.Second }
