package testutil

import (
	"context"

	"github.com/yamadera/torii/internal/srs"
)

// StaticSource serves one fixed configuration, or a fixed error.
type StaticSource struct {
	Cfg *srs.Config
	Err error
}

func (s StaticSource) GatingConfig(context.Context) (*srs.Config, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Cfg, nil
}
