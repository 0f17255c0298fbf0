package mock

import (
	"context"
	"errors"

	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact"
	regmock "github.com/fogbank-io/runtrack/pkg/domain/internal/registry/mock"
)

type Store struct {
	Impl struct {
		Put func(ctx context.Context, runId domain.RunId, path string, data []byte) (string, error)
		Get func(ctx context.Context, runId domain.RunId, path string) ([]byte, error)
	}

	Calls struct {
		Put regmock.CallLog[struct {
			RunId domain.RunId
			Path  string
			Data  []byte
		}]
		Get regmock.CallLog[struct {
			RunId domain.RunId
			Path  string
		}]
	}
}

func New() *Store {
	return &Store{}
}

var _ artifact.Store = &Store{}

func (m *Store) Put(ctx context.Context, runId domain.RunId, path string, data []byte) (string, error) {
	m.Calls.Put = append(m.Calls.Put, struct {
		RunId domain.RunId
		Path  string
		Data  []byte
	}{RunId: runId, Path: path, Data: data})
	if m.Impl.Put != nil {
		return m.Impl.Put(ctx, runId, path, data)
	}

	panic(errors.New("it should not be called"))
}

func (m *Store) Get(ctx context.Context, runId domain.RunId, path string) ([]byte, error) {
	m.Calls.Get = append(m.Calls.Get, struct {
		RunId domain.RunId
		Path  string
	}{RunId: runId, Path: path})
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, runId, path)
	}

	panic(errors.New("it should not be called"))
}
