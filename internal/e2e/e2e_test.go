package e2e

import (
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs every Gherkin feature under features/ through the step
// definitions registered by InitializeScenario.
func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
