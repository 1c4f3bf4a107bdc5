// Package provider defines the config source abstraction.
//
// Providers load configuration from a source (local file, consul, etcd,
// zookeeper) and can watch it for changes.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Type identifies the config source type.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider abstracts config sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Type returns the provider type for logging.
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes and signals via the returned
	// channel. Cancel the context to stop watching. A nil channel means
	// the source does not support watching.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderConfig configures provider creation.
type ProviderConfig struct {
	// Type specifies the source type (file, consul, etcd, zookeeper).
	Type Type

	// Path is the config location: a file path or a key path.
	Path string

	// Endpoints for remote sources (consul, etcd, zookeeper).
	Endpoints []string
}

// New creates a Provider based on ProviderConfig.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(opts.Endpoints, opts.Path)
	case TypeEtcd:
		return NewEtcdProvider(opts.Endpoints, opts.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(opts.Endpoints, opts.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}

// ParseURI splits a config source URI into provider options.
//
// Supported forms:
//
//	config.yaml                             local file
//	file:///etc/drover/config.yaml          local file
//	consul://localhost:8500/drover/config   consul KV key
//	etcd://localhost:2379/drover/config     etcd key
//	zk://localhost:2181/drover/config       zookeeper node
//
// For remote schemes the host becomes the endpoint and the path the key.
// A string without a scheme is treated as a local file path.
func ParseURI(raw string) (ProviderConfig, error) {
	if !strings.Contains(raw, "://") {
		return ProviderConfig{Type: TypeFile, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("invalid config URI %q: %w", raw, err)
	}

	switch u.Scheme {
	case "file":
		return ProviderConfig{Type: TypeFile, Path: u.Path}, nil
	case "consul":
		// Consul KV keys carry no leading slash.
		return ProviderConfig{
			Type:      TypeConsul,
			Path:      strings.TrimPrefix(u.Path, "/"),
			Endpoints: []string{u.Host},
		}, nil
	case "etcd":
		return ProviderConfig{
			Type:      TypeEtcd,
			Path:      u.Path,
			Endpoints: []string{u.Host},
		}, nil
	case "zk", "zookeeper":
		return ProviderConfig{
			Type:      TypeZookeeper,
			Path:      u.Path,
			Endpoints: []string{u.Host},
		}, nil
	default:
		return ProviderConfig{}, fmt.Errorf("unknown config scheme: %s (supported: file, consul, etcd, zk)", u.Scheme)
	}
}
