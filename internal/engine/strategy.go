package engine

import (
	"context"
	"fmt"
	"time"

	"shuttlegate/pkg/apperror"
	"shuttlegate/pkg/plc"
)

// Strategy encodes everything that differs between command types: which
// signals to trigger and watch, which parameters to write, and what to do
// in the windows before and after the PLC program starts acting on them.
type Strategy interface {
	// CommandType returns the command type this strategy handles.
	CommandType() CommandType

	// TriggerAddress returns the signal the worker sets to start execution.
	TriggerAddress(m SignalMap) string
	// CompletionAddress returns the signal the monitor watches for success.
	CompletionAddress(m SignalMap) string

	// Validate rejects an envelope with the wrong command type or missing
	// locations this strategy requires.
	Validate(env CommandEnvelope) error

	// WriteParameters writes the position/gate/direction registers this
	// command type needs, appending one ExecutionStep per phase completed.
	WriteParameters(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope, steps *[]ExecutionStep) error

	// PreTrigger runs before the trigger flag is written. A non-nil result
	// short-circuits execution; nil continues to WriteParameters/trigger.
	PreTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error)
	// PostTrigger runs after the trigger and start-process flags are
	// written, before the backup loop begins idling. A non-nil result
	// short-circuits; the Inbound strategy uses this phase for the
	// barcode/validation protocol.
	PostTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error)

	// BuildSuccessMessage renders the human-readable message for a
	// successful (or warning) completion.
	BuildSuccessMessage(env CommandEnvelope, hasWarning bool) string
	// BuildFailureMessage renders the message for a failed completion.
	BuildFailureMessage(env CommandEnvelope, detail ErrorDetail) string

	// ForceFailOnAlarm overrides the device's fail-on-alarm setting: when
	// true, any alarm terminates the command with Failed immediately,
	// regardless of how the device is configured. Only CheckPallet sets
	// this.
	ForceFailOnAlarm() bool
}

// NewStrategy returns the strategy implementation for the given command
// type, or an error if the type is unrecognized. validator is only
// consulted by the Inbound strategy, and may be populated after this call
// via its Set method as long as it precedes the first Inbound submission.
func NewStrategy(ct CommandType, validator *validatorBox) (Strategy, error) {
	switch ct {
	case Outbound:
		return &outboundStrategy{}, nil
	case Transfer:
		return &transferStrategy{}, nil
	case CheckPallet:
		return &checkPalletStrategy{}, nil
	case Inbound:
		return &inboundStrategy{validator: validator}, nil
	default:
		return nil, apperror.NewWithField(apperror.CodeValidation,
			fmt.Sprintf("unsupported command type: %s", ct), "commandType")
	}
}

func requireSource(env CommandEnvelope) error {
	if env.Source == nil {
		return apperror.NewWithField(apperror.CodeValidation,
			"command requires a source location", "source")
	}
	return nil
}

func requireDestination(env CommandEnvelope) error {
	if env.Destination == nil {
		return apperror.NewWithField(apperror.CodeValidation,
			"command requires a destination location", "destination")
	}
	return nil
}

func requireType(env CommandEnvelope, want CommandType) error {
	if env.CommandType != want {
		return apperror.NewWithField(apperror.CodeValidation,
			fmt.Sprintf("strategy %s cannot handle command type %s", want, env.CommandType), "commandType")
	}
	return nil
}

func appendStep(steps *[]ExecutionStep, name string) {
	*steps = append(*steps, ExecutionStep{Name: name, At: time.Now()})
}

func writeLocation(ctx context.Context, client plc.Client, floorAddr, railAddr, blockAddr string, loc Location) error {
	if err := client.WriteWord(ctx, floorAddr, uint16(loc.Floor)); err != nil {
		return err
	}
	if err := client.WriteWord(ctx, railAddr, uint16(loc.Rail)); err != nil {
		return err
	}
	return client.WriteWord(ctx, blockAddr, uint16(loc.Block))
}
