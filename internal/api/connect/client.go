package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AdminClient calls the admin service.
type AdminClient struct {
	listRooms  *connect.Client[emptypb.Empty, structpb.Struct]
	getQueue   *connect.Client[wrapperspb.StringValue, structpb.Struct]
	pause      *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	resume     *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	skip       *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	stop       *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
	disconnect *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue]
}

// NewAdminClient creates a client for the admin service at baseURL.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *AdminClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append(opts, connect.WithInterceptors(NewAdminAuthInterceptor(token)))

	control := func(procedure string) *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue] {
		return connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](httpClient, baseURL+procedure, opts...)
	}
	return &AdminClient{
		listRooms:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ListRoomsProcedure, opts...),
		getQueue:   connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+GetQueueProcedure, opts...),
		pause:      control(PauseProcedure),
		resume:     control(ResumeProcedure),
		skip:       control(SkipProcedure),
		stop:       control(StopProcedure),
		disconnect: control(DisconnectProcedure),
	}
}

// ListRooms returns a summary of every room.
func (c *AdminClient) ListRooms(ctx context.Context) (*structpb.Struct, error) {
	resp, err := c.listRooms.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// GetQueue returns the queue of roomID.
func (c *AdminClient) GetQueue(ctx context.Context, roomID string) (*structpb.Struct, error) {
	resp, err := c.getQueue.CallUnary(ctx, connect.NewRequest(wrapperspb.String(roomID)))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Pause pauses roomID.
func (c *AdminClient) Pause(ctx context.Context, roomID string) (string, error) {
	return call(ctx, c.pause, roomID)
}

// Resume resumes roomID.
func (c *AdminClient) Resume(ctx context.Context, roomID string) (string, error) {
	return call(ctx, c.resume, roomID)
}

// Skip skips the current track of roomID.
func (c *AdminClient) Skip(ctx context.Context, roomID string) (string, error) {
	return call(ctx, c.skip, roomID)
}

// Stop stops playback in roomID.
func (c *AdminClient) Stop(ctx context.Context, roomID string) (string, error) {
	return call(ctx, c.stop, roomID)
}

// Disconnect disconnects roomID.
func (c *AdminClient) Disconnect(ctx context.Context, roomID string) (string, error) {
	return call(ctx, c.disconnect, roomID)
}

func call(ctx context.Context, client *connect.Client[wrapperspb.StringValue, wrapperspb.StringValue], roomID string) (string, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(wrapperspb.String(roomID)))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}
