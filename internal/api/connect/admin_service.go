// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/domain/track"
)

// AdminServiceName is the fully-qualified name of the admin service.
const AdminServiceName = "guildbox.admin.v1.AdminService"

// Procedure paths of the admin service.
const (
	ListRoomsProcedure  = "/" + AdminServiceName + "/ListRooms"
	GetQueueProcedure   = "/" + AdminServiceName + "/GetQueue"
	PauseProcedure      = "/" + AdminServiceName + "/Pause"
	ResumeProcedure     = "/" + AdminServiceName + "/Resume"
	SkipProcedure       = "/" + AdminServiceName + "/Skip"
	StopProcedure       = "/" + AdminServiceName + "/Stop"
	DisconnectProcedure = "/" + AdminServiceName + "/Disconnect"
)

// Controller is the playback surface exposed to operators.
type Controller interface {
	Rooms(ctx context.Context) []playback.View
	QueueStatus(ctx context.Context, roomID string) (playback.View, error)
	Pause(ctx context.Context, roomID string) error
	Resume(ctx context.Context, roomID string) error
	Skip(ctx context.Context, roomID string) (track.Track, error)
	Stop(ctx context.Context, roomID string) error
	Disconnect(ctx context.Context, roomID string) error
}

// AdminService implements the admin RPCs. Room-scoped calls take the guild ID
// as a StringValue.
type AdminService struct {
	ctl Controller
}

// NewAdminService creates a new AdminService.
func NewAdminService(ctl Controller) *AdminService {
	return &AdminService{ctl: ctl}
}

// Handler returns the path prefix and handler serving every admin procedure.
func (s *AdminService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ListRoomsProcedure, connect.NewUnaryHandler(ListRoomsProcedure, s.ListRooms, opts...))
	mux.Handle(GetQueueProcedure, connect.NewUnaryHandler(GetQueueProcedure, s.GetQueue, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, s.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, s.Resume, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, s.Skip, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, s.Stop, opts...))
	mux.Handle(DisconnectProcedure, connect.NewUnaryHandler(DisconnectProcedure, s.Disconnect, opts...))
	return "/" + AdminServiceName + "/", mux
}

// ListRooms returns every known room.
func (s *AdminService) ListRooms(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	views := s.ctl.Rooms(ctx)
	rooms := make([]any, len(views))
	for i, v := range views {
		rooms[i] = viewSummary(v)
	}
	out, err := structpb.NewStruct(map[string]any{"rooms": rooms})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// GetQueue returns a room's full queue.
func (s *AdminService) GetQueue(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	roomID, err := roomArg(req)
	if err != nil {
		return nil, err
	}
	v, err := s.ctl.QueueStatus(ctx, roomID)
	if err != nil {
		return nil, toConnectError(err)
	}

	m := viewSummary(v)
	queue := make([]any, len(v.Queue))
	for i, t := range v.Queue {
		queue[i] = trackSummary(t)
	}
	m["queue"] = queue

	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// Pause pauses a room.
func (s *AdminService) Pause(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	return s.control(ctx, req, s.ctl.Pause, "Playback paused")
}

// Resume resumes a room.
func (s *AdminService) Resume(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	return s.control(ctx, req, s.ctl.Resume, "Playback resumed")
}

// Skip skips the current track of a room.
func (s *AdminService) Skip(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	roomID, err := roomArg(req)
	if err != nil {
		return nil, err
	}
	skipped, err := s.ctl.Skip(ctx, roomID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(wrapperspb.String("Skipped: " + skipped.DisplayTitle())), nil
}

// Stop stops playback and clears a room.
func (s *AdminService) Stop(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	return s.control(ctx, req, s.ctl.Stop, "Playback stopped and queue cleared")
}

// Disconnect makes the bot leave a room's voice channel.
func (s *AdminService) Disconnect(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.StringValue], error) {
	return s.control(ctx, req, s.ctl.Disconnect, "Disconnected")
}

func (s *AdminService) control(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
	fn func(ctx context.Context, roomID string) error,
	message string,
) (*connect.Response[wrapperspb.StringValue], error) {
	roomID, err := roomArg(req)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, roomID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(wrapperspb.String(message)), nil
}

func roomArg(req *connect.Request[wrapperspb.StringValue]) (string, error) {
	roomID := req.Msg.GetValue()
	if roomID == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, errRoomRequired)
	}
	return roomID, nil
}

func viewSummary(v playback.View) map[string]any {
	m := map[string]any{
		"room_id":    v.RoomID,
		"connected":  v.Connected,
		"channel_id": v.ChannelID,
		"status":     v.Status.String(),
		"loop":       v.Loop,
		"queue_size": len(v.Queue),
	}
	if v.NowPlaying != nil {
		m["now_playing"] = trackSummary(*v.NowPlaying)
	}
	return m
}

func trackSummary(t track.Track) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"title":        t.DisplayTitle(),
		"source":       t.SourceRef,
		"uploader":     t.Uploader,
		"duration_sec": t.Duration.Seconds(),
		"requester":    t.Requester.Name,
	}
}
