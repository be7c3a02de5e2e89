package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"mediaLending/internal/auth"
	"mediaLending/internal/lending"
)

const (
	// MaintenanceServiceName is the fully qualified service name.
	MaintenanceServiceName = "lending.admin.v1.MaintenanceService"
	// CheckOverdueMethod is the full method name of CheckOverdue.
	CheckOverdueMethod = "/" + MaintenanceServiceName + "/CheckOverdue"
)

// MaintenanceServer is the admin maintenance API. Its messages are protobuf
// well-known types, so the service is described by hand instead of generated.
type MaintenanceServer interface {
	CheckOverdue(ctx context.Context, in *emptypb.Empty) (*wrapperspb.Int64Value, error)
}

// RegisterMaintenanceServer registers srv on s.
func RegisterMaintenanceServer(s grpc.ServiceRegistrar, srv MaintenanceServer) {
	s.RegisterService(&maintenanceServiceDesc, srv)
}

var maintenanceServiceDesc = grpc.ServiceDesc{
	ServiceName: MaintenanceServiceName,
	HandlerType: (*MaintenanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckOverdue", Handler: checkOverdueHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lending/admin/v1/maintenance.proto",
}

func checkOverdueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaintenanceServer).CheckOverdue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckOverdueMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MaintenanceServer).CheckOverdue(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Maintenance implements MaintenanceServer over the lending service.
type Maintenance struct {
	Lending *lending.Service
	Users   auth.UserLookup
}

// CheckOverdue marks overdue borrowings. Only admins may call it.
func (m *Maintenance) CheckOverdue(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	if _, err := auth.RequireAdmin(ctx, m.Users); err != nil {
		return nil, toStatus(err)
	}
	n, err := m.Lending.CheckOverdue(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(n), nil
}

// MaintenanceClient calls MaintenanceService.
type MaintenanceClient struct {
	cc grpc.ClientConnInterface
}

func NewMaintenanceClient(cc grpc.ClientConnInterface) *MaintenanceClient {
	return &MaintenanceClient{cc: cc}
}

// CheckOverdue returns the number of borrowings that were marked overdue.
func (c *MaintenanceClient) CheckOverdue(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, CheckOverdueMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
