//go:build !linux

package activation

func newSystemdManager(cfg Config) (Manager, error) {
	return nil, ErrUnsupported
}
