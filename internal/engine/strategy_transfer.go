package engine

import (
	"context"

	"shuttlegate/pkg/plc"
)

// transferStrategy moves a pallet between two storage locations within the
// same device, without passing it through a gate. It requires a source and
// a destination, and is exclusive: the matchmaker never dispatches another
// Transfer or CheckPallet while one is processing.
type transferStrategy struct{}

func (s *transferStrategy) CommandType() CommandType { return Transfer }

func (s *transferStrategy) TriggerAddress(m SignalMap) string    { return m.TransferTrigger }
func (s *transferStrategy) CompletionAddress(m SignalMap) string { return m.TransferCompleted }

func (s *transferStrategy) Validate(env CommandEnvelope) error {
	if err := requireType(env, Transfer); err != nil {
		return err
	}
	if err := requireSource(env); err != nil {
		return err
	}
	return requireDestination(env)
}

func (s *transferStrategy) WriteParameters(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope, steps *[]ExecutionStep) error {
	if err := writeLocation(ctx, client, m.SourceFloor, m.SourceRail, m.SourceBlock, *env.Source); err != nil {
		return err
	}
	appendStep(steps, "write-source")

	if err := writeLocation(ctx, client, m.DestFloor, m.DestRail, m.DestBlock, *env.Destination); err != nil {
		return err
	}
	appendStep(steps, "write-destination")

	if err := client.WriteBool(ctx, m.ExitDirection, env.ExitDirection.Bit()); err != nil {
		return err
	}
	if err := client.WriteBool(ctx, m.EnterDirection, env.EnterDirection.Bit()); err != nil {
		return err
	}
	appendStep(steps, "write-directions")
	return nil
}

func (s *transferStrategy) PreTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

func (s *transferStrategy) PostTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

func (s *transferStrategy) BuildSuccessMessage(env CommandEnvelope, hasWarning bool) string {
	if hasWarning {
		return "transfer completed with warning " + env.Source.String() + " -> " + env.Destination.String()
	}
	return "transfer completed " + env.Source.String() + " -> " + env.Destination.String()
}

func (s *transferStrategy) BuildFailureMessage(env CommandEnvelope, detail ErrorDetail) string {
	return "transfer failed " + env.Source.String() + " -> " + env.Destination.String() + ": " + detail.Message
}

func (s *transferStrategy) ForceFailOnAlarm() bool { return false }
