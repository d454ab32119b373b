//go:build !windows

package datasource

import (
	"context"
	"fmt"
)

func queryWMI(_ context.Context, host, _ string) ([]wmiObject, error) {
	return nil, fmt.Errorf("WMI query on host %s: %w", host, ErrUnsupported)
}
