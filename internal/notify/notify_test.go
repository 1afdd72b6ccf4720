package notify

import (
	"testing"

	"copytrade-engine/internal/model"
)

func TestNoOp_NeverPanics(t *testing.T) {
	var n NoOp
	n.NotifySignalDetected(model.BuySignal{Mint: "MINT"})
	n.NotifyPositionOpen(&model.OpenPosition{Mint: "MINT"})
	n.NotifyExit(&model.ClosedPosition{Mint: "MINT"})
}

func TestNoOp_SatisfiesNotifierInterface(t *testing.T) {
	var _ Notifier = NoOp{}
}
