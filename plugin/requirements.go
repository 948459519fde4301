package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ErrRuntimeDisconnected is reported by RequireRuntime
var ErrRuntimeDisconnected = errors.New("runtime is not connected")

// Requirement represents a single requirement check
type Requirement struct {
	// Name is a short identifier for the requirement
	Name string

	// Description explains what the requirement checks
	Description string

	// CheckFunc performs the actual check
	CheckFunc func(ctx context.Context) error

	// Required indicates if this requirement must pass
	// If false, failures are logged as warnings
	Required bool
}

// RequirementChecker validates a set of requirements
type RequirementChecker struct {
	requirements []Requirement
	owner        string
	logger       *zap.Logger
}

// NewRequirementChecker creates a new requirement checker for owner
func NewRequirementChecker(owner string) *RequirementChecker {
	return &RequirementChecker{
		requirements: make([]Requirement, 0),
		owner:        owner,
		logger:       zap.NewNop(),
	}
}

// WithLogger sets the logger used to report check results
func (rc *RequirementChecker) WithLogger(logger *zap.Logger) *RequirementChecker {
	if logger != nil {
		rc.logger = logger
	}
	return rc
}

// Add adds a requirement to check
func (rc *RequirementChecker) Add(req Requirement) {
	rc.requirements = append(rc.requirements, req)
}

// AddRequired adds a required requirement
func (rc *RequirementChecker) AddRequired(name, description string, checkFunc func(ctx context.Context) error) {
	rc.Add(Requirement{
		Name:        name,
		Description: description,
		CheckFunc:   checkFunc,
		Required:    true,
	})
}

// AddOptional adds an optional requirement
func (rc *RequirementChecker) AddOptional(name, description string, checkFunc func(ctx context.Context) error) {
	rc.Add(Requirement{
		Name:        name,
		Description: description,
		CheckFunc:   checkFunc,
		Required:    false,
	})
}

// Len returns the number of requirements
func (rc *RequirementChecker) Len() int {
	return len(rc.requirements)
}

// Check runs all requirement checks. Optional failures are logged as
// warnings and returned; an error is returned if any required check fails.
func (rc *RequirementChecker) Check(ctx context.Context) (warnings []string, err error) {
	if len(rc.requirements) == 0 {
		return nil, nil
	}

	log := rc.logger.With(zap.String("owner", rc.owner))

	var failures []string
	for _, req := range rc.requirements {
		checkErr := req.CheckFunc(ctx)
		if checkErr == nil {
			log.Debug("requirement satisfied", zap.String("requirement", req.Name))
			continue
		}

		msg := fmt.Sprintf("%s: %v", req.Name, checkErr)
		if req.Required {
			failures = append(failures, msg)
			log.Error("required check failed", zap.String("requirement", req.Name), zap.Error(checkErr))
		} else {
			warnings = append(warnings, msg)
			log.Warn("optional check failed", zap.String("requirement", req.Name), zap.Error(checkErr))
		}
	}

	if len(failures) > 0 {
		return warnings, fmt.Errorf("requirement check(s) failed: %s", strings.Join(failures, "; "))
	}
	return warnings, nil
}

type modeKey struct{}

// WithMode stores the execution mode in ctx
func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, mode)
}

// ModeFrom returns the execution mode stored in ctx
func ModeFrom(ctx context.Context) (Mode, bool) {
	mode, ok := ctx.Value(modeKey{}).(Mode)
	return mode, ok
}

// Common requirement check functions

// RequireMode creates a requirement that checks for a specific mode
func RequireMode(requiredMode Mode) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		mode, ok := ModeFrom(ctx)
		if !ok {
			return fmt.Errorf("mode not set in context")
		}
		if mode != requiredMode {
			return fmt.Errorf("requires %s mode, got %s", requiredMode, mode)
		}
		return nil
	}
}

// RequireEnvVar creates a requirement that checks for a non-empty
// environment variable
func RequireEnvVar(name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return nil
		}
		return fmt.Errorf("environment variable %s not set", name)
	}
}

// RequireRuntime creates a requirement that checks rt is present and
// connected
func RequireRuntime(rt Runtime) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if rt == nil || !rt.Connected() {
			return ErrRuntimeDisconnected
		}
		return nil
	}
}

// RequireAny creates a requirement that passes if any of the given checks pass
func RequireAny(checks ...func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []string
		for _, check := range checks {
			err := check(ctx)
			if err == nil {
				return nil
			}
			errs = append(errs, err.Error())
		}
		return fmt.Errorf("all checks failed: %s", strings.Join(errs, "; "))
	}
}
