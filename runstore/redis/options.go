//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package redis

import (
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "simengine:run:"
	defaultIndexKey  = "simengine:runs"
)

var (
	registryMu sync.RWMutex
	registry   = map[string][]ClientBuilderOpt{}

	clientBuilder = DefaultClientBuilder
)

// SetClientBuilder replaces the builder used to create clients from a URL.
func SetClientBuilder(builder func(opts ...ClientBuilderOpt) (redis.UniversalClient, error)) {
	clientBuilder = builder
}

// DefaultClientBuilder creates a universal client from a redis:// URL.
func DefaultClientBuilder(builderOpts ...ClientBuilderOpt) (redis.UniversalClient, error) {
	o := &ClientBuilderOpts{}
	for _, opt := range builderOpts {
		opt(o)
	}
	if o.URL == "" {
		return nil, fmt.Errorf("redis: url is empty")
	}
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url %s: %w", o.URL, err)
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{opts.Addr},
		DB:           opts.DB,
		Username:     opts.Username,
		Password:     opts.Password,
		Protocol:     opts.Protocol,
		ClientName:   opts.ClientName,
		TLSConfig:    opts.TLSConfig,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	}), nil
}

// ClientBuilderOpt configures DefaultClientBuilder.
type ClientBuilderOpt func(*ClientBuilderOpts)

// ClientBuilderOpts holds the client builder settings.
type ClientBuilderOpts struct {
	URL string
}

// WithClientBuilderURL sets the URL, in the form
// redis://<user>:<password>@<host>:<port>/<db>?<options>.
func WithClientBuilderURL(url string) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.URL = url
	}
}

// RegisterInstance registers named client settings for WithInstanceName.
func RegisterInstance(name string, opts ...ClientBuilderOpt) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = append(registry[name], opts...)
}

func instance(name string) ([]ClientBuilderOpt, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	opts, ok := registry[name]
	return opts, ok
}

// Option configures a Store.
type Option func(*options)

type options struct {
	url          string
	instanceName string
	client       redis.UniversalClient
	keyPrefix    string
	indexKey     string
}

// WithURL connects to the server at url.
func WithURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithInstanceName uses settings registered with RegisterInstance.
func WithInstanceName(name string) Option {
	return func(o *options) {
		o.instanceName = name
	}
}

// WithClient uses an existing client. The store does not close it.
func WithClient(c redis.UniversalClient) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithKeyPrefix sets the prefix of record keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithIndexKey sets the sorted set indexing records by start time.
func WithIndexKey(key string) Option {
	return func(o *options) {
		o.indexKey = key
	}
}
