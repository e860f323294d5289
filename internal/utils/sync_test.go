package utils_test

import (
	"testing"

	mock_hal "github.com/kcore-dev/kcore/hal/mocks"
	"github.com/kcore-dev/kcore/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestWithoutInterruptsRestoresEnabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	cpu := mock_hal.NewMockCPU(ctrl)

	ran := false
	gomock.InOrder(
		cpu.EXPECT().InterruptsEnabled().Return(true),
		cpu.EXPECT().DisableInterrupts(),
		cpu.EXPECT().EnableInterrupts(),
	)

	utils.WithoutInterrupts(cpu, func() { ran = true })
	require.True(t, ran)
}

func TestWithoutInterruptsLeavesDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	cpu := mock_hal.NewMockCPU(ctrl)

	cpu.EXPECT().InterruptsEnabled().Return(false)

	ran := false
	utils.WithoutInterrupts(cpu, func() { ran = true })
	require.True(t, ran)
}

func TestInterruptMutex(t *testing.T) {
	ctrl := gomock.NewController(t)
	cpu := mock_hal.NewMockCPU(ctrl)

	gomock.InOrder(
		cpu.EXPECT().InterruptsEnabled().Return(true),
		cpu.EXPECT().DisableInterrupts(),
		cpu.EXPECT().EnableInterrupts(),
		cpu.EXPECT().InterruptsEnabled().Return(false),
	)

	lock := utils.InterruptMutex{CPU: cpu, UseMutex: true}
	lock.Lock()
	lock.Unlock()

	// Already masked, nothing to restore
	lock.Lock()
	lock.Unlock()
}
