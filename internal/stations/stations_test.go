package stations

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldarSaltoun/BLE-Security-System/internal/httputil"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
)

func intp(v int) *int { return &v }

func newRegistry() (*Registry, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	return NewRegistry(30*time.Second, clock), clock
}

func TestRegistry_TouchAndActive(t *testing.T) {
	reg, clock := newRegistry()

	reg.Touch("1", "192.168.1.21")
	clock.Advance(20 * time.Second)
	reg.Touch("2", "192.168.1.22")
	reg.Touch("", "ignored")

	assert.Equal(t, []string{"1", "2"}, reg.ActiveIDs())

	clock.Advance(15 * time.Second)
	assert.Equal(t, []string{"2"}, reg.ActiveIDs())
	assert.Len(t, reg.Active(time.Minute), 2)

	info, ok := reg.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.21", info.Address)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_TouchKeepsAddress(t *testing.T) {
	reg, clock := newRegistry()
	reg.Touch("1", "10.0.0.1")
	clock.Advance(time.Second)
	reg.Touch("1", "")

	info, _ := reg.Lookup("1")
	assert.Equal(t, "10.0.0.1", info.Address)
	assert.Equal(t, clock.Now(), info.LastSeen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     models.StationCommand
		wantErr bool
	}{
		{"state idle", models.StationCommand{State: intp(0)}, false},
		{"state and mode", models.StationCommand{State: intp(1), Mode: intp(38)}, false},
		{"auto mode", models.StationCommand{Mode: intp(0)}, false},
		{"empty", models.StationCommand{}, true},
		{"bad state", models.StationCommand{State: intp(2)}, true},
		{"bad mode", models.StationCommand{Mode: intp(40)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cmd)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommandURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.7/cmd?mode=37&state=1",
		CommandURL("10.0.0.7", models.StationCommand{State: intp(1), Mode: intp(37)}))
	assert.Equal(t, "http://10.0.0.7/cmd?state=0",
		CommandURL("10.0.0.7", models.StationCommand{State: intp(0)}))
}

func TestCommander_SendAllReportsPerTarget(t *testing.T) {
	reg, _ := newRegistry()
	reg.Touch("1", "10.0.0.1")
	reg.Touch("2", "10.0.0.2")
	reg.Touch("3", "")

	mock := httputil.NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "10.0.0.2" {
			return nil, errors.New("connection refused")
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
	}

	cmdr := NewCommander(reg, NewHTTPTransport(mock), time.Second)
	results, err := cmdr.Send(context.Background(), TargetAll, models.StationCommand{State: intp(0)})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.CommandResult{Target: "1", Address: "10.0.0.1", OK: true}, results[0])
	assert.Equal(t, "2", results[1].Target)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "connection refused")
	assert.Equal(t, "3", results[2].Target)
	assert.Equal(t, ErrNoAddress.Error(), results[2].Error)

	assert.Equal(t, 2, mock.RequestCount())
}

func TestCommander_SendSingle(t *testing.T) {
	reg, _ := newRegistry()
	reg.Touch("4", "10.0.0.4")

	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusInternalServerError, "")
	cmdr := NewCommander(reg, NewHTTPTransport(mock), time.Second)

	results, err := cmdr.Send(context.Background(), "4", models.StationCommand{Mode: intp(39)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Error, "500")

	req := mock.Requests()[0]
	assert.Equal(t, "39", req.URL.Query().Get("mode"))
	assert.Empty(t, req.URL.Query().Get("state"))
}

func TestCommander_Errors(t *testing.T) {
	reg, _ := newRegistry()
	cmdr := NewCommander(reg, NewHTTPTransport(httputil.NewMockHTTPClient()), 0)

	_, err := cmdr.Send(context.Background(), "9", models.StationCommand{State: intp(1)})
	assert.ErrorIs(t, err, ErrUnknownStation)

	_, err = cmdr.Send(context.Background(), TargetAll, models.StationCommand{})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	results, err := cmdr.Send(context.Background(), TargetAll, models.StationCommand{State: intp(1)})
	require.NoError(t, err)
	assert.Empty(t, results)
}
