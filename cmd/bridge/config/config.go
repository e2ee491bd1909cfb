package config

import (
	"epibridge/pkg/bridge"
)

type Config struct {
	BridgeMgr *bridge.Manager
	CertFile  string
	KeyFile   string
}
