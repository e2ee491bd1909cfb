// Package v1 holds the REST request bodies.
package v1

// Command carries either a signal write or an action invocation. Exactly
// one of SignalName and ActionName must be set.
type Command struct {
	SignalName string                 `json:"signalName" binding:"omitempty,min=1,max=140"`
	ActionName string                 `json:"actionName" binding:"omitempty,min=1,max=140"`
	Value      interface{}            `json:"value"`
	Parameters map[string]interface{} `json:"parameters"`
}

// WriteCommand is the body of a direct signal write.
type WriteCommand struct {
	SignalName string      `json:"signalName" binding:"required,min=1,max=140"`
	Value      interface{} `json:"value"`
}

// ActionCommand is the body of a direct action invocation.
type ActionCommand struct {
	ActionName string                 `json:"actionName" binding:"required,min=1,max=140"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ConnectionTestRequest probes an arbitrary endpoint without touching the
// pooled sessions.
type ConnectionTestRequest struct {
	Host string `json:"host" binding:"required,min=1,max=253"`
	Port int    `json:"port" binding:"gte=0,lte=65535"`
	Unit uint8  `json:"unit"`
}

// SettingsBody is the full replacement body for the bridge settings.
type SettingsBody struct {
	PollIntervalMs uint   `json:"pollIntervalMs" binding:"required,gte=50"`
	TopicPrefix    string `json:"topicPrefix" binding:"required,min=1,max=128"`
}
