package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"reddit_relay/internal/domain"
	"reddit_relay/internal/scheduler"
)

type Source interface {
	Subreddit() string
	FetchLatest(ctx context.Context, limit int) ([]domain.Item, error)
	TestConnection(ctx context.Context) error
}

type Sink interface {
	Deliver(ctx context.Context, item *domain.Item) error
	TestConnection(ctx context.Context) error
}

type Ledger interface {
	Load() error
	HasID(id string) (bool, error)
	AddIDs(ids []string) error
	UpdateLastCheck() error
}

type Scheduler interface {
	Start(ctx context.Context, job scheduler.Job) error
	Stop(ctx context.Context) error
}
