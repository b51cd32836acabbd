package db

import "github.com/ceyewan/idemkit/xerrors"

var (
	// ErrConnectorRequired 所选 Driver 对应的连接器未注入
	ErrConnectorRequired = xerrors.New("db: connector required")
	// ErrNotConnected 连接器尚未 Connect
	ErrNotConnected = xerrors.New("db: connector not connected")
)
