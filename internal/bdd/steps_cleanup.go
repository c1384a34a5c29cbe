package bdd

import (
	"context"

	"github.com/chirino/memory-journal/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		if s.Suite.DB == nil {
			return
		}
		// Every scenario starts with an empty journal.
		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			return ctx, s.Suite.DB.ClearAll(ctx)
		})
	})
}
