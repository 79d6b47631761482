package main

import (
	"fmt"
	"os"
	"strings"
)

// Config is the config file format for authagentd serve.
type Config struct {
	Issuer string `json:"issuer"`

	Web       Web       `json:"web"`
	Telemetry Telemetry `json:"telemetry"`
	Logger    Logger    `json:"logger"`
	Expiry    Expiry    `json:"expiry"`

	// JWTSecretEnv names the environment variable holding the HS256
	// signing key for access tokens. Required; there is no config-file
	// field for the raw secret so it never lands in a checked-in file.
	JWTSecretEnv string `json:"jwtSecretEnv"`

	DefaultScope string `json:"defaultScope"`

	// StaticAgents and StaticClients seed the in-memory store at startup,
	// the same role dex's StaticClients/StaticPasswords play for a
	// storage backend that would otherwise require a provisioning step
	// before the server is useful.
	StaticAgents  []StaticAgent  `json:"staticAgents"`
	StaticClients []StaticClient `json:"staticClients"`
}

type Web struct {
	HTTP           string   `json:"http"`
	AdminHTTP      string   `json:"adminHttp"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

type Telemetry struct {
	HTTP string `json:"http"`
}

type Logger struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Expiry struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	AuthRequest  string `json:"authRequest"`
}

// StaticAgent mirrors storage.Agent but carries a plaintext secret (or a
// pointer to one via SecretEnv) to be hashed once at load time.
type StaticAgent struct {
	AgentID   string `json:"agentID"`
	Secret    string `json:"secret"`
	SecretEnv string `json:"secretEnv"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
}

type StaticClient struct {
	ClientID            string   `json:"clientID"`
	Secret              string   `json:"secret"`
	SecretEnv           string   `json:"secretEnv"`
	Name                string   `json:"name"`
	AllowedRedirectURIs []string `json:"allowedRedirectURIs"`
	AllowedGrantTypes   []string `json:"allowedGrantTypes"`
}

// Validate checks the fast, cheap-to-verify invariants of the config file
// before anything expensive (storage, listeners) is set up.
func (c Config) Validate() error {
	checks := []struct {
		bad    bool
		errMsg string
	}{
		{c.Issuer == "", "no issuer specified in config file"},
		{c.Web.HTTP == "", "must supply a web.http address to listen on"},
		{c.JWTSecretEnv == "", "jwtSecretEnv must name an environment variable holding the signing key"},
	}

	var checkErrors []string
	for _, check := range checks {
		if check.bad {
			checkErrors = append(checkErrors, check.errMsg)
		}
	}
	for i, agent := range c.StaticAgents {
		if agent.AgentID == "" {
			checkErrors = append(checkErrors, fmt.Sprintf("staticAgents[%d]: agentID is required", i))
		}
		if agent.Secret == "" && agent.SecretEnv == "" {
			checkErrors = append(checkErrors, fmt.Sprintf("staticAgents[%d]: secret or secretEnv is required", i))
		}
	}
	for i, client := range c.StaticClients {
		if client.ClientID == "" {
			checkErrors = append(checkErrors, fmt.Sprintf("staticClients[%d]: clientID is required", i))
		}
		if client.Secret == "" && client.SecretEnv == "" {
			checkErrors = append(checkErrors, fmt.Sprintf("staticClients[%d]: secret or secretEnv is required", i))
		}
	}

	if len(checkErrors) != 0 {
		return fmt.Errorf("invalid config:\n\t-\t%s", strings.Join(checkErrors, "\n\t-\t"))
	}
	return nil
}

func resolveSecret(literal, envVar string) (string, error) {
	if literal != "" {
		return literal, nil
	}
	v := os.Getenv(envVar)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is unset or empty", envVar)
	}
	return v, nil
}
