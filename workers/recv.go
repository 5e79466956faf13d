package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// recvBackoff is the pause after a failed Recv on a live socket.
const recvBackoff = 50 * time.Millisecond

// pauseAfterRecvError logs err and waits recvBackoff before the next Recv.
// It returns false once ctx is done and the receive loop should exit.
func pauseAfterRecvError(ctx context.Context, logger *zap.Logger, socket string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	logger.Warn("zmq receive failed", zap.String("socket", socket), zap.Error(err))

	timer := time.NewTimer(recvBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
