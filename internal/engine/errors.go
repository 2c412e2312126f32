package engine

import "fmt"

// errorMessages maps a PLC-reported error code to its static message.
// Unknown codes render as a literal fallback string.
var errorMessages = map[int]string{
	1:  "Device not ready",
	2:  "Link not established",
	5:  "Pallet weight exceeds limit",
	10: "Position out of range",
	15: "Warning: Pallet not meeting requirements",
	20: "Gate obstruction detected",
	25: "Barcode reader fault",
	30: "Emergency stop engaged",
}

// lookupErrorMessage resolves a PLC error code to its static message,
// falling back to "Unknown error code: {n}" for anything not in the table.
func lookupErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code: %d", code)
}
