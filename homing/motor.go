package homing

import (
	"fmt"
	"strconv"
)

// StorageSlot is the base offset of a per-axis value inside a PLC's block of
// 100 P variables. Each slot family reserves 16 consecutive variables, one per
// motor index.
type StorageSlot int

const (
	SlotHiLim    StorageSlot = 4
	SlotLoLim    StorageSlot = 20
	SlotHomed    StorageSlot = 36
	SlotNotHomed StorageSlot = 52
	SlotLimFlags StorageSlot = 68
	SlotPos      StorageSlot = 84
)

var slotNames = []struct {
	name string
	slot StorageSlot
}{
	{"hi_lim", SlotHiLim},
	{"lo_lim", SlotLoLim},
	{"homed", SlotHomed},
	{"not_homed", SlotNotHomed},
	{"lim_flags", SlotLimFlags},
	{"pos", SlotPos},
}

// Motor is a single axis declared in a PLC. All register and variable numbers
// are derived from its inputs; a Motor never changes after construction.
type Motor struct {
	Axis        int
	JogDistance int
	Index       int
	PlcNum      int
}

// NewMotor builds a motor for the given axis at position index within PLC plcNum.
func NewMotor(axis, jdist, plcNum, index int) *Motor {
	return &Motor{Axis: axis, JogDistance: jdist, Index: index, PlcNum: plcNum}
}

// PVar returns the P variable number holding slot for this motor.
func (m *Motor) PVar(slot StorageSlot) int {
	return m.PlcNum*100 + int(slot) + m.Index
}

// NX returns the two digit servo channel code used in GeoBrick I variable numbers.
func (m *Motor) NX() string {
	nx := ((m.Axis-1)/4)*10 + ((m.Axis-1)%4 + 1)
	return fmt.Sprintf("%02d", nx)
}

// HomedFlag returns the I variable holding the home capture flag.
func (m *Motor) HomedFlag() string {
	return "7" + m.NX() + "2"
}

// InverseFlag returns the I variable holding the inverted capture flag.
func (m *Motor) InverseFlag() string {
	return "7" + m.NX() + "3"
}

// MacroStation returns the MACRO station number used on PMAC controllers.
func (m *Motor) MacroStation() int {
	return 4*((m.Axis-1)/2) + (m.Axis-1)%2
}

// Symbols returns the symbolic name table for this motor.
func (m *Motor) Symbols() map[string]string {
	symbols := map[string]string{
		"axis":          strconv.Itoa(m.Axis),
		"index":         strconv.Itoa(m.Index),
		"jog_distance":  strconv.Itoa(m.JogDistance),
		"homed_flag":    m.HomedFlag(),
		"inverse_flag":  m.InverseFlag(),
		"macro_station": strconv.Itoa(m.MacroStation()),
	}
	for _, entry := range slotNames {
		symbols[entry.name] = strconv.Itoa(m.PVar(entry.slot))
	}
	return symbols
}
