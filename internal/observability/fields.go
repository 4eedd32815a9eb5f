package observability

import "go.uber.org/zap"

// Field keys shared by every component that logs about a sweep.
const (
	KeyRunID    = "run_id"
	KeyDevice   = "device"
	KeyScenario = "scenario"
	KeyStep     = "step"
	KeyLocator  = "locator"
)

func RunID(id string) zap.Field        { return zap.String(KeyRunID, id) }
func Device(name string) zap.Field     { return zap.String(KeyDevice, name) }
func Scenario(id string) zap.Field     { return zap.String(KeyScenario, id) }
func Step(name string) zap.Field       { return zap.String(KeyStep, name) }
func Locator(locator string) zap.Field { return zap.String(KeyLocator, locator) }
