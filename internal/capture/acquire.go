package capture

import (
	"context"
	"fmt"
)

// Permissions grants or refuses access to device resources. Request may
// prompt the user and block until they answer.
type Permissions interface {
	Request(ctx context.Context, resource Resource) (bool, error)
}

// Frame is the raw output of a camera shutter or gallery pick.
type Frame struct {
	Data     []byte
	Location string
}

// Device produces a frame from one source.
type Device interface {
	Fetch(ctx context.Context) (Frame, error)
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func(ctx context.Context) (Frame, error)

func (f DeviceFunc) Fetch(ctx context.Context) (Frame, error) { return f(ctx) }

// Acquire checks the permission for source, then reads a frame from dev.
func Acquire(ctx context.Context, perms Permissions, source Source, dev Device) (*CapturedImage, error) {
	resource := source.Resource()
	granted, err := perms.Request(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s permission: %w", resource, err)
	}
	if !granted {
		return nil, &PermissionDeniedError{Resource: resource}
	}

	frame, err := dev.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire image from %s: %w", source, err)
	}

	return NewCapturedImage(frame.Data, source, frame.Location)
}

// StaticPermissions is a fixed permission set, used by non-interactive callers.
type StaticPermissions map[Resource]bool

func (p StaticPermissions) Request(_ context.Context, r Resource) (bool, error) {
	return p[r], nil
}
