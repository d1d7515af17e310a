package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/timzifer/mistpanel/config"
	"github.com/timzifer/mistpanel/runtime/state"
)

const (
	dataPath    = "/data"
	controlPath = "/control"

	maxBodyBytes = 64 << 10
)

var (
	// ErrTransport reports that a request never completed or the device answered with a non-success status.
	ErrTransport = errors.New("device transport error")
	// ErrMalformed reports a response body that could not be decoded into a reading.
	ErrMalformed = errors.New("malformed device response")
)

// Command is a single name=value instruction for the control endpoint.
type Command struct {
	Name  string
	Value string
}

func (c Command) String() string {
	return c.Name + "=" + c.Value
}

// Client defines the device operations required by the controller.
type Client interface {
	Data(ctx context.Context) (state.Reading, error)
	Send(ctx context.Context, cmd Command) error
}

// ClientFactory creates device clients from configuration.
type ClientFactory func(cfg config.DeviceConfig) (Client, error)

// dataPayload mirrors the JSON document served by the firmware.
type dataPayload struct {
	Temperature   *float64 `json:"temperatura"`
	Humidity      *float64 `json:"umidade"`
	WaterLevel    *string  `json:"nivel_agua"`
	SystemOn      *bool    `json:"estado_global_ligado"`
	AtomizerOn    *bool    `json:"atomizador_ligado"`
	FanDuty       *int     `json:"velocidade_ventoinha_pwm"`
	ManualControl *bool    `json:"controle_manual_ativo"`
}

type httpClient struct {
	baseURL    string
	transport  config.Transport
	httpClient *http.Client
}

// NewHTTPClientFactory returns a factory that talks to the device over HTTP.
func NewHTTPClientFactory() ClientFactory {
	return func(cfg config.DeviceConfig) (Client, error) {
		return NewHTTPClient(cfg, nil)
	}
}

// NewHTTPClient builds a device client. A nil http.Client gets one with the configured timeout.
func NewHTTPClient(cfg config.DeviceConfig, hc *http.Client) (Client, error) {
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	transport := cfg.Transport
	if transport == "" {
		transport = config.TransportQuery
	}
	if transport != config.TransportQuery && transport != config.TransportForm {
		return nil, fmt.Errorf("unsupported command transport %q", transport)
	}
	if hc == nil {
		timeout := cfg.Timeout.Duration
		if timeout <= 0 {
			timeout = config.DefaultDeviceTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &httpClient{baseURL: base, transport: transport, httpClient: hc}, nil
}

func (c *httpClient) Data(ctx context.Context) (state.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+dataPath, nil)
	if err != nil {
		return state.Reading{}, fmt.Errorf("build data request: %w", err)
	}
	payload, err := c.do(req)
	if err != nil {
		return state.Reading{}, err
	}
	return decodeReading(payload)
}

func (c *httpClient) Send(ctx context.Context, cmd Command) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return errors.New("command name is required")
	}
	values := url.Values{}
	values.Set(cmd.Name, cmd.Value)

	var (
		req *http.Request
		err error
	)
	switch c.transport {
	case config.TransportForm:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+controlPath, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+controlPath+"?"+values.Encode(), nil)
	}
	if err != nil {
		return fmt.Errorf("build control request: %w", err)
	}
	_, err = c.do(req)
	return err
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrTransport, req.Method, req.URL.Path, resp.StatusCode)
	}
	return payload, nil
}

func decodeReading(payload []byte) (state.Reading, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return state.Reading{}, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	var data dataPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return state.Reading{}, fmt.Errorf("%w: decode %s: %v", ErrMalformed, dataPath, err)
	}
	if data.Temperature == nil || data.Humidity == nil {
		return state.Reading{}, fmt.Errorf("%w: temperatura and umidade are required", ErrMalformed)
	}
	return state.Reading{
		Temperature:   *data.Temperature,
		Humidity:      *data.Humidity,
		WaterLevel:    data.WaterLevel,
		SystemOn:      data.SystemOn,
		AtomizerOn:    data.AtomizerOn,
		FanDuty:       data.FanDuty,
		ManualControl: data.ManualControl,
	}, nil
}
