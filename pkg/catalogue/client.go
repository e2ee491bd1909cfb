// Package catalogue loads connection and action definitions from the
// business system and holds them in an immutable in-memory registry.
package catalogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"epibridge/pkg/apis/response"
	"epibridge/pkg/runtime"
)

const (
	connectionsPath = "/api/resource/Modbus Connection"
	actionsPath     = "/api/resource/Modbus Action"
	eventsPath      = "/api/resource/Modbus Event"
	scriptPath      = "/api/method/run_server_script"

	defaultRequestTimeout = 10 * time.Second
)

// Client talks to the business system REST API. Responses arrive as
// loosely typed documents; mapstructure coerces them into wire structs
// before the registry normalizes them.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	hc        *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		hc:        &http.Client{Timeout: defaultRequestTimeout},
	}
}

// connectionDoc mirrors the catalogue's connection document. Signals are
// embedded as a child table.
type connectionDoc struct {
	Name           string      `mapstructure:"name"`
	Host           string      `mapstructure:"host"`
	Port           uint16      `mapstructure:"port"`
	Unit           uint8       `mapstructure:"unit"`
	Enabled        bool        `mapstructure:"enabled"`
	WordOrder      string      `mapstructure:"word_order"`
	PollIntervalMs uint        `mapstructure:"poll_interval_ms"`
	Signals        []signalDoc `mapstructure:"signals"`
}

type signalDoc struct {
	Name          string  `mapstructure:"signal_name"`
	Kind          string  `mapstructure:"signal_type"`
	ModbusAddress uint16  `mapstructure:"modbus_address"`
	Tolerance     float64 `mapstructure:"tolerance"`
}

type actionDoc struct {
	Name       string                   `mapstructure:"name"`
	Enabled    bool                     `mapstructure:"enabled"`
	SignalName string                   `mapstructure:"signal"`
	ScriptName string                   `mapstructure:"server_script"`
	Trigger    string                   `mapstructure:"trigger"`
	IntervalMs uint                     `mapstructure:"interval_ms"`
	Condition  string                   `mapstructure:"condition"`
	Value      string                   `mapstructure:"value"`
	Parameters []map[string]interface{} `mapstructure:"parameters"`
}

func (c *Client) FetchConnections(ctx context.Context) ([]connectionDoc, error) {
	raw, err := c.list(ctx, connectionsPath)
	if err != nil {
		return nil, err
	}
	var docs []connectionDoc
	if err := decodeDocs(raw, &docs); err != nil {
		return nil, errors.Wrap(err, "decode connection documents")
	}
	return docs, nil
}

func (c *Client) FetchActions(ctx context.Context) ([]actionDoc, error) {
	raw, err := c.list(ctx, actionsPath)
	if err != nil {
		return nil, err
	}
	var docs []actionDoc
	if err := decodeDocs(raw, &docs); err != nil {
		return nil, errors.Wrap(err, "decode action documents")
	}
	return docs, nil
}

// CreateEvent mirrors an event into the business system as a document.
// Best effort: callers log failures and move on.
func (c *Client) CreateEvent(ctx context.Context, e *runtime.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	req, err := c.newRequest(ctx, http.MethodPost, eventsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "create event")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("create event: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// RunScript invokes a server script by name with the given parameters and
// returns the raw response payload.
func (c *Client) RunScript(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"script": name,
		"params": params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal script payload")
	}
	req, err := c.newRequest(ctx, http.MethodPost, scriptPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		klog.V(2).InfoS("Failed to reach catalogue", "script", name, "err", err)
		return nil, response.ErrCatalogueUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("run script %q: unexpected status %d", name, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "run script %q", name)
	}
	var out struct {
		Message map[string]interface{} `json:"message"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "run script %q", name)
	}
	return out.Message, nil
}

func (c *Client) list(ctx context.Context, path string) ([]interface{}, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("limit_page_length", "0")
	req.URL.RawQuery = q.Encode()

	resp, err := c.hc.Do(req)
	if err != nil {
		klog.V(2).InfoS("Failed to reach catalogue", "path", path, "err", err)
		return nil, response.ErrCatalogueUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("list %s: unexpected status %d", path, resp.StatusCode)
	}

	var out struct {
		Data []interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, "list %s", path)
	}
	return out.Data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse catalogue url")
	}
	u.Path = path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "build catalogue request")
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// decodeDocs coerces the loosely typed document list into typed structs.
// Numbers frequently arrive as strings or floats; weak typing absorbs it.
func decodeDocs(raw []interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
