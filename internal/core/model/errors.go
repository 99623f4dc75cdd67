package model

import "errors"

// Lifecycle and pipeline sentinel errors, compared with errors.Is.
var (
	ErrAlreadyRunning    = errors.New("ids: already running")
	ErrNotRunning        = errors.New("ids: not running")
	ErrCaptureInitFailed = errors.New("ids: capture init failed")
	ErrNoInterfaceFound  = errors.New("ids: no suitable network interface found")
)
