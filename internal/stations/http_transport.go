package stations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/EldarSaltoun/BLE-Security-System/internal/httputil"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// HTTPTransport sends commands to the station's embedded web server as
// GET http://<address>/cmd?state=&mode=.
type HTTPTransport struct {
	client httputil.HTTPClient
}

// NewHTTPTransport creates a transport using client.
func NewHTTPTransport(client httputil.HTTPClient) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// CommandURL builds the station command URL.
func CommandURL(address string, cmd models.StationCommand) string {
	q := url.Values{}
	if cmd.State != nil {
		q.Set("state", strconv.Itoa(*cmd.State))
	}
	if cmd.Mode != nil {
		q.Set("mode", strconv.Itoa(*cmd.Mode))
	}
	u := url.URL{Scheme: "http", Host: address, Path: "/cmd", RawQuery: q.Encode()}
	return u.String()
}

// SendCommand implements Transport.
func (t *HTTPTransport) SendCommand(ctx context.Context, station models.StationInfo, cmd models.StationCommand) error {
	if station.Address == "" {
		return ErrNoAddress
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, CommandURL(station.Address, cmd), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("station replied with status %d", resp.StatusCode)
	}
	return nil
}
