// Package consul provides a backend persisting the index in HashiCorp
// Consul's KV store.
//
// Layout under the configured prefix:
//
//	entries/<hex id>                JSON entry document
//	links/<hex parent>/<hex name>   JSON link document
//
// Ids and names are hex encoded because they are opaque byte strings
// and Consul keys cannot hold arbitrary bytes. Hex preserves byte
// order, so listing the links prefix yields slots in (parent, name)
// order for free.
//
// Consul KV has a 512KB limit per value, which caps how many xattrs a
// single entry can carry. That is plenty for metadata workloads.
package consul

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
)

// Backend stores entry and link documents in Consul KV.
type Backend struct {
	mu     sync.Mutex
	client *api.Client
	kv     *api.KV

	config *Config
}

// Config contains configuration options for the Consul backend.
type Config struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix for all keys in Consul KV (default: "robinhood")
	Prefix string
}

// New creates a Consul-backed backend.
func New(config *Config) (*Backend, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}
	if config.Prefix == "" {
		config.Prefix = "robinhood"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &Backend{
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

// Name returns the identifier name defined for this backend.
func (*Backend) Name() string {
	return "consul"
}

// Capabilities returns the capabilities supported by this backend.
func (*Backend) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Capabilities: []backend.Capability{
			backend.CapabilityScan,
			backend.CapabilityUpdate,
		},
	}
}

// Root returns the backend's root record.
func (b *Backend) Root(ctx context.Context, mask data.FieldMask, statMask data.StatMask) (*data.Record, error) {
	return backend.FilterOne(ctx, b, backend.RootFilter(), mask, statMask)
}

// Close releases the backend instance. The Consul client is stateless,
// there is nothing to tear down.
func (b *Backend) Close(ctx context.Context) error {
	return nil
}

// wrap classifies a storage failure. Network level failures are worth
// retrying once the agent is reachable again; anything Consul itself
// rejected is fatal for the operation.
func (b *Backend) wrap(op string, err error) error {
	var netErr net.Error
	retryable := errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded)
	return &backend.Error{
		Backend:   b.Name(),
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}

func (b *Backend) buildKey(parts ...string) string {
	prefix := strings.TrimSuffix(b.config.Prefix, "/")
	return prefix + "/" + strings.Join(parts, "/")
}

// Factory constructs consul backends for "consul:" URIs.
// Example: "consul://token@localhost:8500/robinhood/fs1"
// The userinfo is used as the ACL token and the path as the KV prefix.
type Factory struct{}

func (Factory) Scheme() string {
	return "consul"
}

func (Factory) New(ctx context.Context, uri *backend.RawURI) (backend.Backend, error) {
	config := &Config{
		Token:  uri.Userinfo,
		Prefix: strings.Trim(uri.Path, "/"),
	}
	if uri.Host != "" {
		config.Address = uri.Host
		if uri.Port != "" {
			config.Address = uri.Host + ":" + uri.Port
		}
	}
	return New(config)
}
