package options

import (
	"time"

	"github.com/spf13/pflag"

	"epibridge/cmd/bridge/config"
	"epibridge/pkg/bridge"
	baseoptions "epibridge/pkg/generic/options"
)

type Options struct {
	Port         string        `json:"port"`
	Wait         time.Duration `json:"graceful-timeout"`
	ErpURL       string        `json:"erp-url"`
	ErpAPIKey    string        `json:"erp-api-key"`
	ErpAPISecret string        `json:"erp-api-secret"`
	MqttBroker   string        `json:"mqtt-broker"`
	MqttClientID string        `json:"mqtt-client-id"`
	PollInterval uint          `json:"poll-interval"`
	baseoptions.BaseOptions
}

const (
	_defaultPort         = "32700"
	_defaultWait         = 15 * time.Second
	_defaultMqttClientID = "epibridge"
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:         _defaultPort,
		Wait:         _defaultWait,
		MqttClientID: _defaultMqttClientID,
		BaseOptions:  baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait, "graceful-timeout", o.Wait, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.ErpURL, "erp-url", o.ErpURL, "Base URL of the business system serving the signal catalogue")
	fs.StringVar(&o.ErpAPIKey, "erp-api-key", o.ErpAPIKey, "API key for the business system")
	fs.StringVar(&o.ErpAPISecret, "erp-api-secret", o.ErpAPISecret, "API secret for the business system")
	fs.StringVar(&o.MqttBroker, "mqtt-broker", o.MqttBroker, "MQTT broker URL for realtime signal updates - e.g. tcp://127.0.0.1:1883, empty disables publishing")
	fs.StringVar(&o.MqttClientID, "mqtt-client-id", o.MqttClientID, "MQTT client identifier")
	fs.UintVar(&o.PollInterval, "poll-interval", o.PollInterval, "Default poll interval in milliseconds, 0 keeps the stored settings value")
}

func (o *Options) Config(stopCh <-chan struct{}) (*config.Config, error) {
	c := &config.Config{}
	mgr := bridge.NewManager(&bridge.Config{
		ErpURL:         o.ErpURL,
		ErpAPIKey:      o.ErpAPIKey,
		ErpAPISecret:   o.ErpAPISecret,
		MqttBroker:     o.MqttBroker,
		MqttClientID:   o.MqttClientID,
		PollIntervalMs: o.PollInterval,
	}, stopCh)

	if err := mgr.Init(); err != nil {
		return nil, err
	}
	c.BridgeMgr = mgr

	return c, nil
}
