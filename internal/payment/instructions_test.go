package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInstructions(t *testing.T) {
	t.Run("KnownChannel", func(t *testing.T) {
		steps := GetInstructions(ChannelBCAVA)
		assert.NotEmpty(t, steps)

		found := false
		for _, s := range steps {
			if strings.Contains(s, "{{payment_code}}") {
				found = true
				break
			}
		}
		assert.True(t, found)
	})

	t.Run("UnknownChannel", func(t *testing.T) {
		steps := GetInstructions("UNKNOWN")
		assert.Len(t, steps, 1)
	})

	t.Run("EveryAcceptedChannelHasSteps", func(t *testing.T) {
		for _, ch := range []string{ChannelBCAVA, ChannelBNIVA, ChannelMandiriVA, ChannelQRIS, ChannelDANA} {
			assert.True(t, supportedChannel(ch), ch)
			assert.Greater(t, len(GetInstructions(ch)), 1, ch)
		}
		assert.False(t, supportedChannel("OVO"))
	})
}

func TestInjectVariables(t *testing.T) {
	t.Run("ReplacesPlaceholders", func(t *testing.T) {
		steps := []string{"Transfer {{amount}} to VA {{payment_code}}"}
		got := InjectVariables(steps, InstructionVars{"amount": "IDR 100000", "payment_code": "8808"})
		assert.Equal(t, []string{"Transfer IDR 100000 to VA 8808"}, got)
	})

	t.Run("MissingVariable", func(t *testing.T) {
		got := InjectVariables([]string{"Pay {{amount}}"}, InstructionVars{})
		assert.Equal(t, "Pay {{amount}}", got[0])
	})
}
