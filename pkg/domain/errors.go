package domain

import "errors"

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrNotConfigured  = errors.New("not configured")
	ErrAuthentication = errors.New("authentication failure")
	ErrUpstream       = errors.New("upstream failure")

	ErrPluginTypeNotFound = errors.New("plugin type not found")
	ErrPluginNotLoaded    = errors.New("plugin not loaded")
)
