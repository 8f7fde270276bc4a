package service

import (
	"fmt"

	"github.com/flicky/storehub-api/internal/model"
)

// StatusPolicy decides whether an admin may move an order from one status to
// another. Both statuses are already known to be valid literals.
type StatusPolicy interface {
	Name() string
	Allow(from, to model.OrderStatus) bool
}

const (
	PolicyPermissive = "permissive"
	PolicyStrict     = "strict"
)

func NewStatusPolicy(name string) (StatusPolicy, error) {
	switch name {
	case "", PolicyPermissive:
		return PermissivePolicy{}, nil
	case PolicyStrict:
		return StrictPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown order status policy %q", name)
}

// PermissivePolicy accepts any status from any status.
type PermissivePolicy struct{}

func (PermissivePolicy) Name() string                      { return PolicyPermissive }
func (PermissivePolicy) Allow(_, _ model.OrderStatus) bool { return true }

// StrictPolicy follows the lifecycle one step at a time. Any non-terminal order
// may be canceled; delivered and canceled orders never change.
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return PolicyStrict }

func (StrictPolicy) Allow(from, to model.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == model.OrderStatusCanceled {
		return true
	}
	for i := 0; i+1 < len(model.OrderLifecycle); i++ {
		if model.OrderLifecycle[i] == from {
			return model.OrderLifecycle[i+1] == to
		}
	}
	return false
}
