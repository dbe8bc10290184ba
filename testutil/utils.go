package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/mock/gomock"

	"github.com/fortuna-labs/keeper/testutil/mocks"
)

func PrepareMockedEntropyController(t *testing.T, provider, contract common.Address) *mocks.MockEntropyController {
	ctl := gomock.NewController(t)
	mockEntropyController := mocks.NewMockEntropyController(ctl)
	mockEntropyController.EXPECT().Provider().Return(provider).AnyTimes()
	mockEntropyController.EXPECT().ContractAddress().Return(contract).AnyTimes()

	return mockEntropyController
}

func PrepareMockedEthClient(t *testing.T) *mocks.MockEthClient {
	ctl := gomock.NewController(t)
	mockEthClient := mocks.NewMockEthClient(ctl)
	mockEthClient.EXPECT().Close().AnyTimes()

	return mockEthClient
}
