package engine

import (
	"context"

	"shuttlegate/pkg/plc"
)

// outboundStrategy moves a pallet from a storage location out through a
// gate. It requires only a source.
type outboundStrategy struct{}

func (s *outboundStrategy) CommandType() CommandType { return Outbound }

func (s *outboundStrategy) TriggerAddress(m SignalMap) string    { return m.OutboundTrigger }
func (s *outboundStrategy) CompletionAddress(m SignalMap) string { return m.OutboundCompleted }

func (s *outboundStrategy) Validate(env CommandEnvelope) error {
	if err := requireType(env, Outbound); err != nil {
		return err
	}
	return requireSource(env)
}

func (s *outboundStrategy) WriteParameters(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope, steps *[]ExecutionStep) error {
	if err := writeLocation(ctx, client, m.SourceFloor, m.SourceRail, m.SourceBlock, *env.Source); err != nil {
		return err
	}
	appendStep(steps, "write-source")

	if err := client.WriteWord(ctx, m.GateNumber, uint16(env.GateNumber)); err != nil {
		return err
	}
	if err := client.WriteBool(ctx, m.ExitDirection, env.ExitDirection.Bit()); err != nil {
		return err
	}
	if err := client.WriteBool(ctx, m.EnterDirection, env.EnterDirection.Bit()); err != nil {
		return err
	}
	appendStep(steps, "write-gate-and-directions")
	return nil
}

func (s *outboundStrategy) PreTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

func (s *outboundStrategy) PostTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

func (s *outboundStrategy) BuildSuccessMessage(env CommandEnvelope, hasWarning bool) string {
	if hasWarning {
		return "outbound completed with warning from " + env.Source.String()
	}
	return "outbound completed from " + env.Source.String()
}

func (s *outboundStrategy) BuildFailureMessage(env CommandEnvelope, detail ErrorDetail) string {
	return "outbound failed from " + env.Source.String() + ": " + detail.Message
}

func (s *outboundStrategy) ForceFailOnAlarm() bool { return false }
