package runner

import (
	"github.com/kuitang/persona-e2e/internal/config"
	"github.com/kuitang/persona-e2e/internal/fakepersona"
)

// StartFake starts an in-process identity provider when cfg selects the fake
// environment and points cfg at it. The returned stop func is never nil.
func StartFake(cfg *config.Config, opts fakepersona.Options) (stop func() error, err error) {
	if !cfg.IsFake() || cfg.Everywhere {
		return func() error { return nil }, nil
	}
	srv, err := fakepersona.New(opts)
	if err != nil {
		return nil, err
	}
	base, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	cfg.UseFake(base)
	return srv.Close, nil
}
