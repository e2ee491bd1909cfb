// Package bridge wires the catalogue, session pool, poller, publisher,
// and command paths into one managed unit and exposes them over REST.
package bridge

import (
	"epibridge/pkg/runtime"
)

// BridgeMeta identifies this bridge instance. Created on first start and
// kept on disk.
type BridgeMeta struct {
	Secret string `json:"secret"`
	runtime.ObjectMeta
}

// Settings is the locally owned, mutable configuration. Guarded by an
// eTag; concurrent editors lose with a conflict instead of clobbering.
type Settings struct {
	runtime.ObjectMeta
	PollIntervalMs uint   `json:"pollIntervalMs"`
	TopicPrefix    string `json:"topicPrefix"`
}

type ResponseModel struct {
	Cpus  interface{} `json:"cpus,omitempty"`
	Mem   interface{} `json:"mem,omitempty"`
	Disks interface{} `json:"disk,omitempty"`
}

type MemUsageInfo struct {
	Total       string
	Used        string
	UsedPercent string
}

type DiskUsageInfo struct {
	Total       string
	Used        string
	UsedPercent string
}

const bridgeMeta = "meta"
