package config

const (
	DefaultMaxBodyBytes = 64 << 10

	defaultServerAddr = ":3000"
)

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" env:"ECHO_CALLBACK_ADDR"`
	// BehindHTTPSProxy rewrites the scheme of returned endpoint URLs to https
	// when TLS is terminated by a proxy in front of the server.
	BehindHTTPSProxy bool  `yaml:"behindHTTPSProxy" json:"behindHTTPSProxy" env:"BEHIND_HTTPS_PROXY"`
	CORS             bool  `yaml:"cors" json:"cors" env:"ECHO_CALLBACK_CORS"`
	MaxBodyBytes     int64 `yaml:"maxBodyBytes" json:"maxBodyBytes" env:"ECHO_CALLBACK_MAX_BODY_BYTES"`
}
