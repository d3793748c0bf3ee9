//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sensei-edu/sensei-api/internal/app"
)

func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(coreSet, httpSet)
	return nil, nil, nil
}

func InitializeCLI(ctx context.Context) (*CLI, func(), error) {
	wire.Build(coreSet, provideCLI)
	return nil, nil, nil
}
