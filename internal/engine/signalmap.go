package engine

import (
	"regexp"
	"strconv"
	"strings"

	"shuttlegate/pkg/apperror"
)

// parsedAddress is the decomposed form of a bound signal-map address.
type parsedAddress struct {
	DBNumber int
	Kind     byte // 'X' bit, 'W' word, 'D' dword, 'B' byte
	Offset   int
	Bit      int
}

var addressPattern = regexp.MustCompile(`^DB(\d+)\.DB([XWDB])(\d+)(?:\.(\d+))?$`)

// ParseAddress decomposes a bound address (e.g. "DB52.DBX0.3") back into
// its data-block number, register kind, byte offset, and bit. It is the
// inverse of BindSignalMap's prefixing.
func ParseAddress(address string) (parsedAddress, error) {
	m := addressPattern.FindStringSubmatch(address)
	if m == nil {
		return parsedAddress{}, apperror.NewWithField(apperror.CodeInvalidAddress,
			"unparsable address: "+address, "address")
	}

	db, _ := strconv.Atoi(m[1])
	offset, _ := strconv.Atoi(m[3])
	bit := 0
	if m[4] != "" {
		bit, _ = strconv.Atoi(m[4])
	}

	return parsedAddress{DBNumber: db, Kind: m[2][0], Offset: offset, Bit: bit}, nil
}

// signalTemplate names every PLC signal a slot needs, as an offset-only
// address with no data-block prefix (e.g. "DBX52.0", "DBW50"). Binding
// prepends "DB{n}." to each, producing a slot's immutable SignalMap.
var signalTemplate = SignalMap{
	SoftwareConnected: "DBX0.0",
	DeviceReady:       "DBX0.1",
	CommandFailed:     "DBX0.2",
	ErrorAlarm:        "DBX0.3",
	ErrorCode:         "DBW2",

	InboundTrigger:       "DBX10.0",
	InboundCompleted:     "DBX10.1",
	OutboundTrigger:      "DBX10.2",
	OutboundCompleted:    "DBX10.3",
	TransferTrigger:      "DBX10.4",
	TransferCompleted:    "DBX10.5",
	PalletCheckTrigger:   "DBX10.6",
	PalletCheckCompleted: "DBX10.7",
	StartProcess:         "DBX10.8",

	SourceFloor: "DBW20",
	SourceRail:  "DBW22",
	SourceBlock: "DBW24",
	SourceDepth: "DBW26",

	DestFloor: "DBW30",
	DestRail:  "DBW32",
	DestBlock: "DBW34",

	GateNumber:     "DBW40",
	EnterDirection: "DBX42.0",
	ExitDirection:  "DBX42.1",

	PalletAvailable:   "DBX44.0",
	PalletUnavailable: "DBX44.1",

	BarcodeInvalid: "DBX46.0",
	BarcodeValid:   "DBX46.1",

	Barcode0: "DBB50",
	Barcode1: "DBB51",
	Barcode2: "DBB52",
	Barcode3: "DBB53",
	Barcode4: "DBB54",
	Barcode5: "DBB55",
	Barcode6: "DBB56",
	Barcode7: "DBB57",
	Barcode8: "DBB58",
	Barcode9: "DBB59",

	PositionFloor: "DBW60",
	PositionRail:  "DBW62",
	PositionBlock: "DBW64",
	PositionDepth: "DBW66",
}

// SignalMap holds the fully-qualified address of every logical signal a
// slot's protocol exchange touches. The resolved map is immutable once
// bound to a slot's DB number.
type SignalMap struct {
	SoftwareConnected string
	DeviceReady       string
	CommandFailed     string
	ErrorAlarm        string
	ErrorCode         string

	InboundTrigger       string
	InboundCompleted     string
	OutboundTrigger      string
	OutboundCompleted    string
	TransferTrigger      string
	TransferCompleted    string
	PalletCheckTrigger   string
	PalletCheckCompleted string
	StartProcess         string

	SourceFloor string
	SourceRail  string
	SourceBlock string
	SourceDepth string

	DestFloor string
	DestRail  string
	DestBlock string

	GateNumber     string
	EnterDirection string
	ExitDirection  string

	PalletAvailable   string
	PalletUnavailable string

	BarcodeInvalid string
	BarcodeValid   string

	Barcode0, Barcode1, Barcode2, Barcode3, Barcode4 string
	Barcode5, Barcode6, Barcode7, Barcode8, Barcode9 string

	PositionFloor string
	PositionRail  string
	PositionBlock string
	PositionDepth string
}

// BarcodeRegisters returns the ten single-character barcode register
// addresses, in order.
func (m SignalMap) BarcodeRegisters() [10]string {
	return [10]string{
		m.Barcode0, m.Barcode1, m.Barcode2, m.Barcode3, m.Barcode4,
		m.Barcode5, m.Barcode6, m.Barcode7, m.Barcode8, m.Barcode9,
	}
}

// BindSignalMap prepends "DB{n}." to every address in the template,
// rejecting any template entry that is empty or does not start with "DB".
func BindSignalMap(dbNumber int) (SignalMap, error) {
	bound := signalTemplate
	fields := bound.addresses()

	for _, f := range fields {
		if *f.ptr == "" {
			return SignalMap{}, apperror.NewWithField(apperror.CodeConfig,
				"signal template entry is empty", f.name)
		}
		if !strings.HasPrefix(*f.ptr, "DB") {
			return SignalMap{}, apperror.NewWithField(apperror.CodeConfig,
				"signal template address must start with DB: "+*f.ptr, f.name)
		}
	}

	return bound.withPrefix(dbNumber), nil
}

type addrField struct {
	name string
	ptr  *string
}

// addresses enumerates every field for validation purposes.
func (m *SignalMap) addresses() []addrField {
	return []addrField{
		{"SoftwareConnected", &m.SoftwareConnected},
		{"DeviceReady", &m.DeviceReady},
		{"CommandFailed", &m.CommandFailed},
		{"ErrorAlarm", &m.ErrorAlarm},
		{"ErrorCode", &m.ErrorCode},
		{"InboundTrigger", &m.InboundTrigger},
		{"InboundCompleted", &m.InboundCompleted},
		{"OutboundTrigger", &m.OutboundTrigger},
		{"OutboundCompleted", &m.OutboundCompleted},
		{"TransferTrigger", &m.TransferTrigger},
		{"TransferCompleted", &m.TransferCompleted},
		{"PalletCheckTrigger", &m.PalletCheckTrigger},
		{"PalletCheckCompleted", &m.PalletCheckCompleted},
		{"StartProcess", &m.StartProcess},
		{"SourceFloor", &m.SourceFloor},
		{"SourceRail", &m.SourceRail},
		{"SourceBlock", &m.SourceBlock},
		{"SourceDepth", &m.SourceDepth},
		{"DestFloor", &m.DestFloor},
		{"DestRail", &m.DestRail},
		{"DestBlock", &m.DestBlock},
		{"GateNumber", &m.GateNumber},
		{"EnterDirection", &m.EnterDirection},
		{"ExitDirection", &m.ExitDirection},
		{"PalletAvailable", &m.PalletAvailable},
		{"PalletUnavailable", &m.PalletUnavailable},
		{"BarcodeInvalid", &m.BarcodeInvalid},
		{"BarcodeValid", &m.BarcodeValid},
		{"Barcode0", &m.Barcode0}, {"Barcode1", &m.Barcode1},
		{"Barcode2", &m.Barcode2}, {"Barcode3", &m.Barcode3},
		{"Barcode4", &m.Barcode4}, {"Barcode5", &m.Barcode5},
		{"Barcode6", &m.Barcode6}, {"Barcode7", &m.Barcode7},
		{"Barcode8", &m.Barcode8}, {"Barcode9", &m.Barcode9},
		{"PositionFloor", &m.PositionFloor},
		{"PositionRail", &m.PositionRail},
		{"PositionBlock", &m.PositionBlock},
		{"PositionDepth", &m.PositionDepth},
	}
}

// withPrefix returns a copy of m with every address prefixed by the slot's
// data block number.
func (m SignalMap) withPrefix(dbNumber int) SignalMap {
	prefix := "DB" + strconv.Itoa(dbNumber) + "."
	out := m
	for _, f := range out.addresses() {
		*f.ptr = prefix + *f.ptr
	}
	return out
}
