package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configKeyListenAddress          = "listen_addr"
	configKeyApiKey                 = "api_key"
	configKeyJwtSecret              = "jwt_secret"
	configKeyOriginAllowlist        = "origin_allowlist"
	configKeyRateLimitPerMinute     = "rate_limit_per_minute"
	configKeyMetricsAddress         = "metrics_addr"
	configKeyLogLevel               = "log_level"
	configKeyLogFormat              = "log_format"
	configKeyShutdownTimeoutSeconds = "shutdown_timeout_seconds"
	configKeyTrustProxyHeaders      = "trust_proxy_headers"

	envKeyListenAddress          = "LISTEN_ADDR"
	envKeyApiKey                 = "RELAY_API_KEY"
	envKeyJwtSecret              = "RELAY_JWT_SECRET"
	envKeyOriginAllowlist        = "ORIGIN_ALLOWLIST"
	envKeyRateLimitPerMinute     = "RATE_LIMIT_PER_MINUTE"
	envKeyMetricsAddress         = "METRICS_ADDR"
	envKeyLogLevel               = "LOG_LEVEL"
	envKeyLogFormat              = "LOG_FORMAT"
	envKeyShutdownTimeoutSeconds = "SHUTDOWN_TIMEOUT_SECONDS"
	envKeyTrustProxyHeaders      = "TRUST_PROXY_HEADERS"

	defaultListenAddress          = ":8080"
	defaultRateLimitPerMinute     = 600
	defaultLogLevel               = "info"
	defaultLogFormat              = logFormatJSON
	defaultShutdownTimeoutSeconds = 10
)

var configEnvBindings = map[string]string{
	configKeyListenAddress:          envKeyListenAddress,
	configKeyApiKey:                 envKeyApiKey,
	configKeyJwtSecret:              envKeyJwtSecret,
	configKeyOriginAllowlist:        envKeyOriginAllowlist,
	configKeyRateLimitPerMinute:     envKeyRateLimitPerMinute,
	configKeyMetricsAddress:         envKeyMetricsAddress,
	configKeyLogLevel:               envKeyLogLevel,
	configKeyLogFormat:              envKeyLogFormat,
	configKeyShutdownTimeoutSeconds: envKeyShutdownTimeoutSeconds,
	configKeyTrustProxyHeaders:      envKeyTrustProxyHeaders,
}

type serverConfig struct {
	ListenAddress      string
	ApiKey             string
	Issuer             issuerConfig
	AllowedOrigins     []string
	RateLimitPerMinute int
	MetricsAddress     string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP replace the peer address.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// newConfigViper returns a viper instance bound to the relay's environment variables.
// Values from a config file, when one is read, sit below the environment.
func newConfigViper() *viper.Viper {
	configViper := viper.New()
	configViper.SetConfigType("yaml")
	for configKey, envKey := range configEnvBindings {
		_ = configViper.BindEnv(configKey, envKey)
	}
	configViper.SetDefault(configKeyListenAddress, defaultListenAddress)
	configViper.SetDefault(configKeyRateLimitPerMinute, defaultRateLimitPerMinute)
	configViper.SetDefault(configKeyLogLevel, defaultLogLevel)
	configViper.SetDefault(configKeyLogFormat, defaultLogFormat)
	configViper.SetDefault(configKeyShutdownTimeoutSeconds, defaultShutdownTimeoutSeconds)
	return configViper
}

func readConfigFile(configViper *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}
	configViper.SetConfigFile(configPath)
	if readError := configViper.ReadInConfig(); readError != nil {
		return fmt.Errorf("read config file %s: %w", configPath, readError)
	}
	return nil
}

func loadConfig(configViper *viper.Viper) (serverConfig, error) {
	apiKey := strings.TrimSpace(configViper.GetString(configKeyApiKey))
	if apiKey == "" {
		return serverConfig{}, fmt.Errorf("missing %s", envKeyApiKey)
	}

	issuer := issuerConfig{SigningSecret: strings.TrimSpace(configViper.GetString(configKeyJwtSecret))}
	if validationError := issuer.validate(); validationError != nil {
		return serverConfig{}, fmt.Errorf("%s: %w", envKeyJwtSecret, validationError)
	}

	listenAddress := strings.TrimSpace(configViper.GetString(configKeyListenAddress))
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}

	logFormat := strings.ToLower(strings.TrimSpace(configViper.GetString(configKeyLogFormat)))
	if logFormat != logFormatJSON && logFormat != logFormatConsole {
		return serverConfig{}, fmt.Errorf("bad %s: %q", envKeyLogFormat, logFormat)
	}

	shutdownTimeoutSeconds := intSetting(configViper, configKeyShutdownTimeoutSeconds, defaultShutdownTimeoutSeconds)
	if shutdownTimeoutSeconds <= 0 {
		shutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}

	return serverConfig{
		ListenAddress:      listenAddress,
		ApiKey:             apiKey,
		Issuer:             issuer,
		AllowedOrigins:     listSetting(configViper, configKeyOriginAllowlist),
		RateLimitPerMinute: intSetting(configViper, configKeyRateLimitPerMinute, defaultRateLimitPerMinute),
		MetricsAddress:     strings.TrimSpace(configViper.GetString(configKeyMetricsAddress)),
		LogLevel:           strings.TrimSpace(configViper.GetString(configKeyLogLevel)),
		LogFormat:          logFormat,
		ShutdownTimeout:    time.Duration(shutdownTimeoutSeconds) * time.Second,
		TrustProxyHeaders:  configViper.GetBool(configKeyTrustProxyHeaders),
	}, nil
}

// intSetting returns fallback for blank or unparsable values.
func intSetting(configViper *viper.Viper, configKey string, fallback int) int {
	rawValue := strings.TrimSpace(configViper.GetString(configKey))
	if rawValue == "" {
		return fallback
	}
	parsedValue, parseError := strconv.Atoi(rawValue)
	if parseError != nil {
		return fallback
	}
	return parsedValue
}

// listSetting accepts a YAML sequence or a comma separated string.
func listSetting(configViper *viper.Viper, configKey string) []string {
	switch configViper.Get(configKey).(type) {
	case []any, []string:
		return splitList(strings.Join(configViper.GetStringSlice(configKey), ","))
	default:
		return splitList(configViper.GetString(configKey))
	}
}

func splitList(rawList string) []string {
	var listItems []string
	for _, listItem := range strings.Split(rawList, ",") {
		if trimmed := strings.TrimSpace(listItem); trimmed != "" {
			listItems = append(listItems, trimmed)
		}
	}
	return listItems
}
