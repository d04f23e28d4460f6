package timer

// AlertPlayer is the host's audio output. Both calls are best effort: the
// clock engine reports failures and carries on.
type AlertPlayer interface {
	// Unlock prepares audio output. It is called once, on the first start
	// of a timer with a sound configured.
	Unlock() error

	// Play plays a named alert sound without blocking.
	Play(sound string) error
}

// SilentPlayer discards every alert.
type SilentPlayer struct{}

// Unlock implements AlertPlayer.
func (SilentPlayer) Unlock() error { return nil }

// Play implements AlertPlayer.
func (SilentPlayer) Play(string) error { return nil }

// PlayerFunc adapts a play function to AlertPlayer. Unlock is a no-op.
type PlayerFunc func(sound string) error

// Unlock implements AlertPlayer.
func (PlayerFunc) Unlock() error { return nil }

// Play implements AlertPlayer.
func (f PlayerFunc) Play(sound string) error { return f(sound) }
