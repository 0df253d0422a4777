package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperandSize(t *testing.T) {
	require.Equal(t, 0, WidthNone.OperandSize())
	require.Equal(t, 1, WidthU8.OperandSize())
	require.Equal(t, 1, WidthI8.OperandSize())
	require.Equal(t, 2, WidthU16.OperandSize())
	require.Equal(t, 2, WidthI16.OperandSize())
	require.Equal(t, 2, WidthU8U8.OperandSize())
	require.Equal(t, 3, WidthU16U8.OperandSize())
}

func TestGetInfoKnownOpcodes(t *testing.T) {
	cases := []struct {
		code  Code
		name  string
		width Width
	}{
		{Pop, "POP", WidthNone},
		{LoadConst, "LOAD_CONST", WidthU16},
		{LoadSmallInt, "LOAD_SMALL_INT", WidthI8},
		{Jump, "JUMP", WidthI16},
		{CallFunction, "CALL_FUNCTION", WidthU8},
		{CallFunctionKw, "CALL_FUNCTION_KW", WidthU8U8},
		{CallMethod, "CALL_METHOD", WidthU16U8},
		{Nop, "NOP", WidthNone},
	}
	for _, c := range cases {
		info := GetInfo(c.code)
		require.Equal(t, c.name, info.Name)
		require.Equal(t, c.width, info.Width)
		require.Equal(t, c.code, info.Code)
	}
}

func TestGetInfoUnknownOpcodeIsZeroValue(t *testing.T) {
	info := GetInfo(Invalid)
	require.Equal(t, "", info.Name)
}
