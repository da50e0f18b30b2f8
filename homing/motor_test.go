package homing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMotorAddressesDoNotCollide(t *testing.T) {
	seen := make(map[int]string)
	for plc := MinPlcNumber; plc <= MaxPlcNumber; plc++ {
		for index := 0; index < MaxMotors; index++ {
			m := NewMotor(index*2+1, 0, plc, index)
			for _, entry := range slotNames {
				p := m.PVar(entry.slot)
				if owner, exists := seen[p]; exists {
					t.Fatalf("P%d used by plc %d index %d and %s", p, plc, index, owner)
				}
				seen[p] = fmt.Sprintf("plc %d index %d %s", plc, index, entry.name)
			}
		}
	}
}

func TestMotorAddressesStayInsidePlcBlock(t *testing.T) {
	m := NewMotor(3, 0, 11, 15)
	require.Equal(t, 1104+15, m.PVar(SlotHiLim))
	require.Equal(t, 1199, m.PVar(SlotPos))
	require.Less(t, m.PVar(SlotPos), 1200)
}

func TestMotorDerivedFlags(t *testing.T) {
	m := NewMotor(3, 100, 11, 0)
	require.Equal(t, "03", m.NX())
	require.Equal(t, "7032", m.HomedFlag())
	require.Equal(t, "7033", m.InverseFlag())
	require.Equal(t, 4, m.MacroStation())

	m = NewMotor(12, 0, 11, 1)
	require.Equal(t, "24", m.NX())
	require.Equal(t, "7242", m.HomedFlag())
	require.Equal(t, 21, m.MacroStation())
}

func TestMotorSymbols(t *testing.T) {
	m := NewMotor(1, 250, 9, 2)
	symbols := m.Symbols()
	require.Equal(t, "1", symbols["axis"])
	require.Equal(t, "250", symbols["jog_distance"])
	require.Equal(t, "906", symbols["hi_lim"])
	require.Equal(t, "986", symbols["pos"])
}
