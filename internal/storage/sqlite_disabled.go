//go:build !sqlite

package storage

import (
	"fmt"

	logx "spawnbot/pkg/logx"
)

func openSQLite(*Config, logx.Logger) (Store, error) {
	return nil, fmt.Errorf("storage: sqlite driver not compiled in (build with -tags sqlite)")
}
