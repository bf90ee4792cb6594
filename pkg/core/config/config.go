// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// ErrNoConfigVersion is an error, which is returned when the config file does
// not provide the config format version.
var ErrNoConfigVersion = errors.New("config format version not specified")

// ErrUnsupportedVersion is an error, which is returned when the config file
// uses an incompatible version format.
var ErrUnsupportedVersion = errors.New("unsupported config format version")

// ErrInvalidRolePath is an error, which is returned when the configured IAM
// role path is not enclosed in slashes.
var ErrInvalidRolePath = errors.New("invalid IAM role path")

// ErrNoRegion is an error, which is returned when neither a region, nor a
// default region has been configured.
var ErrNoRegion = errors.New("no AWS region specified")

// ErrIncompleteAuth is an error, which is returned when only one of the basic
// auth username and password is configured.
var ErrIncompleteAuth = errors.New("incomplete basic auth credentials")

// ConfigFormatVersion represents the supported config format version.
const ConfigFormatVersion = "v1alpha1"

// DefaultAWSTokenRetriever is the name of the default token retriever, which
// relies on the shared credentials and config files only.
const DefaultAWSTokenRetriever = "none"

// Defaults applied to settings left unset in the config file.
const (
	DefaultServerAddress     = ":8080"
	DefaultMetricsAddress    = ":6080"
	DefaultMetricsPath       = "/metrics"
	DefaultReadHeaderTimeout = 30 * time.Second
	DefaultRequestTimeout    = 60 * time.Second
	DefaultAWSRegion         = "us-east-1"
	DefaultAWSAppID          = "aws-service-broker"
	DefaultRoleNamePrefix    = "cf"
	DefaultRolePath          = "/cf-role/"
	DefaultBucketNamePrefix  = "cf-"
	DefaultTablePrefix       = "cf-"
	DefaultTokenFileDuration = time.Hour
)

// Config represents the broker configuration.
type Config struct {
	// Version is the version of the config file.
	Version string `yaml:"version"`

	// Debug configures debug mode, if set to true.
	Debug bool `yaml:"debug"`

	// Logging provides the logging config settings.
	Logging LoggingConfig `yaml:"logging"`

	// Server provides the settings of the broker API server.
	Server ServerConfig `yaml:"server"`

	// Metrics provides the settings of the metrics server.
	Metrics MetricsConfig `yaml:"metrics"`

	// Catalog provides the settings for the service catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// AWS provides the AWS specific configuration settings.
	AWS AWSConfig `yaml:"aws"`

	// IAM provides the settings for the IAM roles managed by the broker.
	IAM IAMConfig `yaml:"iam"`

	// S3 provides the settings for the S3 service.
	S3 S3Config `yaml:"s3"`

	// DynamoDB provides the settings for the DynamoDB service.
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// LoggingConfig provides the logging config settings.
type LoggingConfig struct {
	// Level specifies the log level to use.
	Level string `yaml:"level"`

	// Format specifies the format of the log events.
	Format string `yaml:"format"`

	// AddSource specifies whether to include source code position of the
	// log statement.
	AddSource bool `yaml:"add_source"`

	// Attributes specifies a set of default attributes, which will be added
	// to each log event.
	Attributes map[string]string `yaml:"attributes"`
}

// ServerConfig provides the settings of the broker API server.
type ServerConfig struct {
	// Address specifies the network address on which the server listens.
	Address string `yaml:"address"`

	// ReadHeaderTimeout is the amount of time allowed to read request
	// headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// RequestTimeout is the deadline applied to each broker request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RequireAPIVersion rejects requests without the X-Broker-API-Version
	// header, if set.
	RequireAPIVersion bool `yaml:"require_api_version"`

	// Auth specifies the basic auth credentials expected from the platform.
	// Authentication is disabled when no username is configured.
	Auth BasicAuthConfig `yaml:"auth"`
}

// BasicAuthConfig provides the HTTP basic auth credentials.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// IsEnabled returns true if basic auth is configured.
func (c BasicAuthConfig) IsEnabled() bool {
	return c.Username != ""
}

// MetricsConfig provides the settings of the metrics server.
type MetricsConfig struct {
	// Address specifies the network address on which metrics are served.
	Address string `yaml:"address"`

	// Path specifies the HTTP path on which metrics are served.
	Path string `yaml:"path"`
}

// CatalogConfig provides the settings for the service catalog.
type CatalogConfig struct {
	// Path specifies a catalog file. The bundled catalog is used when
	// empty.
	Path string `yaml:"path"`
}

// AWSConfig provides the AWS specific configuration settings.
type AWSConfig struct {
	// Region is the region used by the API clients.
	Region string `yaml:"region"`

	// DefaultRegion is the region used when Region is not set, and the
	// region could not be resolved from the shared config.
	DefaultRegion string `yaml:"default_region"`

	// AppID is an optional application specific identifier.
	AppID string `yaml:"app_id"`

	// Endpoint overrides the base endpoint of the API clients, e.g. when
	// running against a local AWS emulator.
	Endpoint string `yaml:"endpoint"`

	// Credentials specifies the credentials used by the API clients.
	Credentials AWSCredentialsConfig `yaml:"credentials"`
}

// EffectiveRegion returns the region, which the broker uses for new
// resources.
func (c AWSConfig) EffectiveRegion() string {
	if c.Region != "" {
		return c.Region
	}

	return c.DefaultRegion
}

// AWSCredentialsConfig provides the credentials settings for the AWS clients.
type AWSCredentialsConfig struct {
	// TokenRetriever specifies the name of the token retriever to use.
	TokenRetriever string `yaml:"token_retriever"`

	// TokenFile provides the settings for the token_file retriever.
	TokenFile TokenFileRetrieverConfig `yaml:"token_file"`

	// Static provides the settings for the static retriever.
	Static StaticCredentialsConfig `yaml:"static"`
}

// StaticCredentialsConfig provides static access keys, e.g. for local AWS
// emulators.
type StaticCredentialsConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// TokenFileRetrieverConfig provides the settings for the token_file retriever.
type TokenFileRetrieverConfig struct {
	// Path specifies the path to the identity token file.
	Path string `yaml:"path"`

	// RoleARN specifies the IAM Role ARN to assume.
	RoleARN string `yaml:"role_arn"`

	// RoleSessionName specifies the session name of the assumed role.
	RoleSessionName string `yaml:"role_session_name"`

	// Duration specifies the expiry duration of the STS credentials.
	Duration time.Duration `yaml:"duration"`
}

// IAMConfig provides the settings for the IAM roles managed by the broker.
type IAMConfig struct {
	// OIDCProviderARN is the ARN of the OIDC identity provider trusted by
	// the roles created for the iam-role service.
	OIDCProviderARN string `yaml:"oidc_provider_arn"`

	// RoleNamePrefix is the prefix of the roles created by the broker.
	RoleNamePrefix string `yaml:"role_name_prefix"`

	// RolePath is the path under which roles are created and searched.
	RolePath string `yaml:"role_path"`
}

// S3Config provides the settings for the S3 service.
type S3Config struct {
	// BucketNamePrefix is the prefix of the default bucket names.
	BucketNamePrefix string `yaml:"bucket_name_prefix"`
}

// DynamoDBConfig provides the settings for the DynamoDB service.
type DynamoDBConfig struct {
	// TablePrefix is the prefix of the table name prefixes.
	TablePrefix string `yaml:"table_prefix"`

	// DeleteTablesOnDeprovision specifies whether tables carrying the
	// instance prefix are deleted on deprovisioning. Defaults to true.
	DeleteTablesOnDeprovision *bool `yaml:"delete_tables_on_deprovision"`
}

// ShouldDeleteTables returns whether tables are deleted on deprovisioning.
func (c DynamoDBConfig) ShouldDeleteTables() bool {
	if c.DeleteTablesOnDeprovision == nil {
		return true
	}

	return *c.DeleteTablesOnDeprovision
}

// SetDefaults fills in the settings, which were left unset.
func (c *Config) SetDefaults() {
	setDefault(&c.Server.Address, DefaultServerAddress)
	setDefault(&c.Metrics.Address, DefaultMetricsAddress)
	setDefault(&c.Metrics.Path, DefaultMetricsPath)
	setDefault(&c.AWS.DefaultRegion, DefaultAWSRegion)
	setDefault(&c.AWS.AppID, DefaultAWSAppID)
	setDefault(&c.AWS.Credentials.TokenRetriever, DefaultAWSTokenRetriever)
	setDefault(&c.IAM.RoleNamePrefix, DefaultRoleNamePrefix)
	setDefault(&c.IAM.RolePath, DefaultRolePath)
	setDefault(&c.S3.BucketNamePrefix, DefaultBucketNamePrefix)
	setDefault(&c.DynamoDB.TablePrefix, DefaultTablePrefix)

	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}
	if c.AWS.Credentials.TokenFile.Duration == 0 {
		c.AWS.Credentials.TokenFile.Duration = DefaultTokenFileDuration
	}
}

// Validate validates the config settings.
func (c *Config) Validate() error {
	if c.AWS.EffectiveRegion() == "" {
		return ErrNoRegion
	}

	path := c.IAM.RolePath
	if !strings.HasPrefix(path, "/") || !strings.HasSuffix(path, "/") {
		return fmt.Errorf("%w: %s", ErrInvalidRolePath, path)
	}

	auth := c.Server.Auth
	if (auth.Username == "") != (auth.Password == "") {
		return ErrIncompleteAuth
	}

	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// New returns a new [Config] with the defaults applied.
func New() *Config {
	conf := &Config{Version: ConfigFormatVersion}
	conf.SetDefaults()

	return conf
}

// Parse parses the config from the given path.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseBytes(data)
}

// ParseBytes parses the config from the given data, applies the defaults and
// validates the result.
func ParseBytes(data []byte) (*Config, error) {
	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, err
	}

	if conf.Version == "" {
		return nil, ErrNoConfigVersion
	}

	if conf.Version != ConfigFormatVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, conf.Version)
	}

	conf.SetDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

// MustParse parses the config from the given path, or panics in case of errors.
func MustParse(path string) *Config {
	config, err := Parse(path)
	if err != nil {
		panic(err)
	}

	return config
}
