package engine

import (
	"context"

	"shuttlegate/pkg/plc"
)

// checkPalletStrategy probes a single storage slot for pallet presence. It
// writes only a source (including depth) and, once the PLC signals
// completion, the worker reads PalletAvailable/PalletUnavailable and
// encodes both into the CommandResult. Like Transfer it is exclusive, and
// unlike every other command type it always terminates on alarm regardless
// of the device's fail-on-alarm setting.
type checkPalletStrategy struct{}

func (s *checkPalletStrategy) CommandType() CommandType { return CheckPallet }

func (s *checkPalletStrategy) TriggerAddress(m SignalMap) string    { return m.PalletCheckTrigger }
func (s *checkPalletStrategy) CompletionAddress(m SignalMap) string { return m.PalletCheckCompleted }

func (s *checkPalletStrategy) Validate(env CommandEnvelope) error {
	if err := requireType(env, CheckPallet); err != nil {
		return err
	}
	return requireSource(env)
}

func (s *checkPalletStrategy) WriteParameters(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope, steps *[]ExecutionStep) error {
	if err := writeLocation(ctx, client, m.SourceFloor, m.SourceRail, m.SourceBlock, *env.Source); err != nil {
		return err
	}
	depth := env.Source.Depth
	if depth == 0 {
		depth = 1
	}
	if err := client.WriteWord(ctx, m.SourceDepth, uint16(depth)); err != nil {
		return err
	}
	appendStep(steps, "write-source-and-depth")
	return nil
}

func (s *checkPalletStrategy) PreTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

func (s *checkPalletStrategy) PostTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

// ReadAvailability reads the PalletAvailable/PalletUnavailable booleans.
// The worker calls this once the completion signal fires, after the
// monitor/step-machine race has already resolved.
func (s *checkPalletStrategy) ReadAvailability(ctx context.Context, client plc.Client, m SignalMap) (available, unavailable bool, err error) {
	available, err = client.ReadBool(ctx, m.PalletAvailable)
	if err != nil {
		return false, false, err
	}
	unavailable, err = client.ReadBool(ctx, m.PalletUnavailable)
	if err != nil {
		return false, false, err
	}
	return available, unavailable, nil
}

func (s *checkPalletStrategy) BuildSuccessMessage(env CommandEnvelope, hasWarning bool) string {
	if hasWarning {
		return "pallet check completed with warning at " + env.Source.String()
	}
	return "pallet check completed at " + env.Source.String()
}

func (s *checkPalletStrategy) BuildFailureMessage(env CommandEnvelope, detail ErrorDetail) string {
	return "pallet check failed at " + env.Source.String() + ": " + detail.Message
}

func (s *checkPalletStrategy) ForceFailOnAlarm() bool { return true }
