package storage

import (
	"context"
	"io"
)

// Observer is told the outcome of every store operation.
type Observer interface {
	ObserveStorage(operation string, err error)
}

// Observed wraps store so that obs sees every operation.
func Observed(store Store, obs Observer) Store {
	return &observed{store: store, obs: obs}
}

type observed struct {
	store Store
	obs   Observer
}

func (o *observed) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := o.store.List(ctx, prefix)
	o.obs.ObserveStorage("list", err)
	return keys, err
}

func (o *observed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := o.store.Get(ctx, key)
	o.obs.ObserveStorage("get", err)
	return data, err
}

func (o *observed) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	err := o.store.Put(ctx, key, body, metadata)
	o.obs.ObserveStorage("put", err)
	return err
}

func (o *observed) Delete(ctx context.Context, keys ...string) error {
	err := o.store.Delete(ctx, keys...)
	o.obs.ObserveStorage("delete", err)
	return err
}
