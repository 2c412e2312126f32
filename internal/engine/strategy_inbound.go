package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"shuttlegate/pkg/apperror"
	"shuttlegate/pkg/plc"
)

const (
	barcodeLength       = 10
	barcodeAllZero      = "0000000000"
	barcodePollInterval = 500 * time.Millisecond
	validationDeadline  = 5 * time.Minute
)

// validatorBox holds the one barcode-validation collaborator the
// coordinator installs via SetBarcodeValidator. It is shared by every
// device's Inbound strategy so installing it once covers the whole
// gateway, and it may be set after devices are registered as long as it
// precedes the first Inbound submission.
type validatorBox struct {
	mu sync.RWMutex
	fn BarcodeValidator
}

func (b *validatorBox) Set(fn BarcodeValidator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fn = fn
}

func (b *validatorBox) Get() BarcodeValidator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fn
}

// inboundStrategy brings a pallet onto a device through a gate. Unlike the
// other three types it carries no source/destination at submission time:
// both are injected once the PLC-reported barcode clears the external
// validation collaborator.
type inboundStrategy struct {
	validator *validatorBox
}

func (s *inboundStrategy) CommandType() CommandType { return Inbound }

func (s *inboundStrategy) TriggerAddress(m SignalMap) string    { return m.InboundTrigger }
func (s *inboundStrategy) CompletionAddress(m SignalMap) string { return m.InboundCompleted }

func (s *inboundStrategy) Validate(env CommandEnvelope) error {
	return requireType(env, Inbound)
}

func (s *inboundStrategy) WriteParameters(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope, steps *[]ExecutionStep) error {
	// Nothing is known yet; parameters are written from PostTrigger once
	// the barcode has been read and validated.
	return nil
}

func (s *inboundStrategy) PreTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	return nil, nil
}

// PostTrigger implements the barcode-validation protocol: poll the ten
// single-character registers until a real barcode appears, hand it to the
// external collaborator, and write the outcome back to the PLC. The PLC
// program - not this code - decides the command's final status once the
// validation flags are set.
func (s *inboundStrategy) PostTrigger(ctx context.Context, client plc.Client, m SignalMap, env CommandEnvelope) (*CommandResult, error) {
	barcode, err := s.readBarcode(ctx, client, m)
	if err != nil {
		return nil, err
	}

	valCtx, cancel := context.WithTimeout(ctx, validationDeadline)
	defer cancel()

	resp, err := s.validate(valCtx, env, barcode)
	if err != nil || !resp.IsValid || resp.Destination == nil || resp.Gate <= 0 {
		if werr := client.WriteBool(ctx, m.BarcodeInvalid, true); werr != nil {
			return nil, werr
		}
		if werr := client.WriteBool(ctx, m.BarcodeValid, false); werr != nil {
			return nil, werr
		}
		return nil, nil
	}

	if werr := client.WriteBool(ctx, m.BarcodeValid, true); werr != nil {
		return nil, werr
	}
	if werr := client.WriteBool(ctx, m.BarcodeInvalid, false); werr != nil {
		return nil, werr
	}
	if werr := writeLocation(ctx, client, m.DestFloor, m.DestRail, m.DestBlock, *resp.Destination); werr != nil {
		return nil, werr
	}
	if werr := client.WriteWord(ctx, m.GateNumber, uint16(resp.Gate)); werr != nil {
		return nil, werr
	}
	if werr := client.WriteBool(ctx, m.EnterDirection, resp.EnterDirection.Bit()); werr != nil {
		return nil, werr
	}
	return nil, nil
}

// readBarcode polls the ten barcode registers on a 500ms cadence until the
// concatenated value is no longer all zeros. A register reporting a string
// of length != 1 truncates that attempt at that index; a truncated attempt
// is not accepted and polling continues, so only a full ten-character
// barcode is returned.
func (s *inboundStrategy) readBarcode(ctx context.Context, client plc.Client, m SignalMap) (string, error) {
	registers := m.BarcodeRegisters()
	ticker := time.NewTicker(barcodePollInterval)
	defer ticker.Stop()

	for {
		var b strings.Builder
		truncated := false
		for _, addr := range registers {
			ch, err := client.ReadString(ctx, addr, 1)
			if err != nil {
				return "", err
			}
			if len(ch) != 1 {
				truncated = true
				break
			}
			b.WriteString(ch)
		}

		barcode := b.String()
		if !truncated && barcode != barcodeAllZero && len(barcode) == barcodeLength {
			return barcode, nil
		}

		select {
		case <-ctx.Done():
			return "", apperror.Wrap(ctx.Err(), apperror.CodeCancelled, "barcode read cancelled")
		case <-ticker.C:
		}
	}
}

func (s *inboundStrategy) validate(ctx context.Context, env CommandEnvelope, barcode string) (BarcodeValidationResponse, error) {
	fn := s.validator.Get()
	if fn == nil {
		return BarcodeValidationResponse{}, apperror.New(apperror.CodeValidation, "no barcode validator installed")
	}
	return fn(ctx, BarcodeValidationRequest{
		CommandID: env.CommandID,
		DeviceID:  env.DeviceID,
		Barcode:   barcode,
	})
}

func (s *inboundStrategy) BuildSuccessMessage(env CommandEnvelope, hasWarning bool) string {
	if hasWarning {
		return "inbound completed with warning"
	}
	return "inbound completed"
}

func (s *inboundStrategy) BuildFailureMessage(env CommandEnvelope, detail ErrorDetail) string {
	return "inbound failed: " + detail.Message
}

func (s *inboundStrategy) ForceFailOnAlarm() bool { return false }
