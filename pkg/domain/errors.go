package domain

import "errors"

// ErrKeyNotFound is returned when a state key is absent.
var ErrKeyNotFound = errors.New("state key not found")

// ErrUnrecognized is returned when model output matches no known action shape.
var ErrUnrecognized = errors.New("unrecognized action format")

// ErrNoJSON is returned when a model reply contains no JSON object.
var ErrNoJSON = errors.New("no json object in reply")

// ErrInvalidAction is returned when an action spec lacks a method or url.
var ErrInvalidAction = errors.New("invalid action: method and url are required")

// ErrNoTask is returned when the task catalog yields nothing to work on.
var ErrNoTask = errors.New("no task available")

// ErrAlreadyRunning is returned when Start is called on a running engine.
var ErrAlreadyRunning = errors.New("engine already running")

// ErrNotRunning is returned when an operation needs a running engine.
var ErrNotRunning = errors.New("engine not running")
