package stations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// TargetAll addresses every active station.
const TargetAll = "all"

var (
	// ErrUnknownStation is returned for a target id never seen.
	ErrUnknownStation = errors.New("unknown station")
	// ErrNoAddress is reported when a station has no known address.
	ErrNoAddress = errors.New("station has no known address")
	// ErrInvalidCommand is returned when a command fails validation.
	ErrInvalidCommand = errors.New("invalid command")
)

// Transport delivers one command to one station.
type Transport interface {
	SendCommand(ctx context.Context, station models.StationInfo, cmd models.StationCommand) error
}

// Commander resolves command targets through the registry and hands each
// station its command. Delivery is attempted once per target.
type Commander struct {
	registry  *Registry
	transport Transport
	timeout   time.Duration
}

// NewCommander creates a commander. timeout bounds each delivery.
func NewCommander(registry *Registry, transport Transport, timeout time.Duration) *Commander {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Commander{registry: registry, transport: transport, timeout: timeout}
}

// Validate checks state is 0 or 1 and mode is 0 (auto) or an advertising
// channel. At least one of them must be set.
func Validate(cmd models.StationCommand) error {
	if cmd.State == nil && cmd.Mode == nil {
		return fmt.Errorf("%w: state or mode required", ErrInvalidCommand)
	}
	if cmd.State != nil && *cmd.State != 0 && *cmd.State != 1 {
		return fmt.Errorf("%w: state must be 0 or 1, got %d", ErrInvalidCommand, *cmd.State)
	}
	if cmd.Mode != nil {
		switch *cmd.Mode {
		case 0, 37, 38, 39:
		default:
			return fmt.Errorf("%w: mode must be 0, 37, 38 or 39, got %d", ErrInvalidCommand, *cmd.Mode)
		}
	}
	return nil
}

// Send delivers cmd to target, which is TargetAll or a station id. Failures
// are reported per target in the results and never stop delivery to the
// other targets.
func (c *Commander) Send(ctx context.Context, target string, cmd models.StationCommand) ([]models.CommandResult, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	var targets []models.StationInfo
	if target == TargetAll {
		for _, info := range c.registry.Active(0) {
			targets = append(targets, info)
		}
	} else {
		info, ok := c.registry.Lookup(target)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStation, target)
		}
		targets = append(targets, info)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	results := make([]models.CommandResult, len(targets))
	var wg sync.WaitGroup
	for i, info := range targets {
		wg.Add(1)
		go func(i int, info models.StationInfo) {
			defer wg.Done()
			results[i] = c.deliver(ctx, info, cmd)
		}(i, info)
	}
	wg.Wait()
	return results, nil
}

func (c *Commander) deliver(ctx context.Context, info models.StationInfo, cmd models.StationCommand) models.CommandResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := models.CommandResult{Target: info.ID, Address: info.Address}
	if err := c.transport.SendCommand(ctx, info, cmd); err != nil {
		log.Printf("Commander: station %s (%s): %v", info.ID, info.Address, err)
		result.Error = err.Error()
		return result
	}
	result.OK = true
	return result
}
