package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]*Client
	modules      map[string]string
}

// RegistryConfig carries the knobs the registry needs from app config.
type RegistryConfig struct {
	ChainConfig   string
	DefaultChain  string
	RPCURL        string
	ChainID       uint64
	SessionModule string
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	defs, err := LoadDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*Client)
	modules := make(map[string]string)
	for name, def := range defs.Chains {
		client, err := NewClient(ctx, Config{
			Name:    name,
			RPCURL:  def.RPCURL,
			WSURL:   def.WSURL,
			ChainID: def.ChainID,
			Notes:   def.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		clients[name] = client
		modules[name] = def.SessionModule
	}

	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := NewClient(ctx, Config{Name: "default", RPCURL: cfg.RPCURL, ChainID: cfg.ChainID})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		modules["default"] = cfg.SessionModule
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, clients: clients, modules: modules}, nil
}

// DefaultChain returns the name of the chain selected as default.
func (r *Registry) DefaultChain() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (*Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (*Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// SessionModule returns the session-key module address configured for name.
func (r *Registry) SessionModule(name string) string {
	if r == nil {
		return ""
	}
	return r.modules[name]
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
