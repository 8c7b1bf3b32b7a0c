package checkers

import (
	"fmt"

	"github.com/reposcout/reposcout/internal/validation"
)

// RegisterDefaults registers the built-in checker for every rule kind
func RegisterDefaults(registry *validation.CheckerRegistry) error {
	defaults := []validation.Checker{
		&FileStructureChecker{},
		&DependencyChecker{},
		NewInstallChecker(),
		NewFunctionalChecker(),
	}

	for _, checker := range defaults {
		if err := registry.Register(checker); err != nil {
			return fmt.Errorf("failed to register %s checker: %w", checker.Kind(), err)
		}
	}
	return nil
}
