package voice

import (
	"context"
	"strings"
	"sync"
)

// PermissionGranted is the permission value a client reports after the user allowed the microphone.
const PermissionGranted = "granted"

// ClientMedia is a MediaSource backed by the permission decision a remote
// client reported for its own microphone.
type ClientMedia struct {
	Permission string
	// Release is called once when the stream is closed.
	Release func()
}

// Acquire returns a stream unless the client reported anything but a grant.
func (m ClientMedia) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(m.Permission), PermissionGranted) {
		return nil, ErrMicrophoneDenied
	}
	return &clientStream{release: m.Release}, nil
}

type clientStream struct {
	once    sync.Once
	release func()
}

func (s *clientStream) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
	return nil
}
