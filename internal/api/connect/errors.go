package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/app/apperr"
)

var errRoomRequired = errors.New("room id is required")

// toConnectError maps an application error onto a Connect status code. The
// user-facing message travels as the error message.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	msg := errors.New(apperr.UserMessage(err))
	switch apperr.Classify(err) {
	case apperr.KindPrecondition:
		return connect.NewError(connect.CodeFailedPrecondition, msg)
	case apperr.KindConnection:
		return connect.NewError(connect.CodeUnavailable, msg)
	case apperr.KindResolution:
		return connect.NewError(connect.CodeNotFound, msg)
	default:
		return connect.NewError(connect.CodeInternal, msg)
	}
}
