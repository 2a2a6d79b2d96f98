package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping pinger
}

type consumer struct {
	name string
	run  runner
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []dependency
	Consumers    []consumer
}

// Service checks worker dependencies once and then runs every consumer until
// one fails or the context ends.
type Service struct {
	logg      *logger.Logger
	deps      []dependency
	consumers []consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, c := range params.Consumers {
		if c.run == nil {
			return nil, fmt.Errorf("consumer %s is nil", c.name)
		}
	}
	return &Service{
		logg:      params.Logger,
		deps:      params.Dependencies,
		consumers: params.Consumers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if dep.ping == nil {
			continue
		}
		if err := pingDependency(ctx, s.logg, dep.name, dep.ping.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		group.Go(func() error {
			err := c.run.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(groupCtx, fmt.Sprintf("%s consumer stopped unexpectedly", c.name), err)
			}
			return err
		})
	}
	return group.Wait()
}
