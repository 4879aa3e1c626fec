package server

import (
	"context"

	"github.com/micro-sensor/sitewhere/internal/management"

	"google.golang.org/grpc"
)

const (
	UserManagementService   = "sitewhere.user.UserManagement"
	TenantManagementService = "sitewhere.tenant.TenantManagement"
)

// UserStore is the management store surface the user service exposes.
type UserStore interface {
	CreateUser(ctx context.Context, u management.User) (management.User, error)
	GetUser(ctx context.Context, username string) (management.User, error)
	ListUsers(ctx context.Context) ([]management.User, error)
}

// TenantStore is the management store surface the tenant service exposes.
type TenantStore interface {
	CreateTenant(ctx context.Context, t management.Tenant) (management.Tenant, error)
	GetTenant(ctx context.Context, token string) (management.Tenant, error)
	ListTenants(ctx context.Context) ([]management.Tenant, error)
}

type GetUserRequest struct {
	Username string `json:"username"`
}

type ListUsersResponse struct {
	Users []management.User `json:"users"`
}

type GetTenantRequest struct {
	Token string `json:"token"`
}

type ListTenantsResponse struct {
	Tenants []management.Tenant `json:"tenants"`
}

// Empty is the request of list calls.
type Empty struct{}

type userService struct {
	store UserStore
}

type tenantService struct {
	store TenantStore
}

// UserManagement returns the registration of the user management service.
func UserManagement(store UserStore) Registration {
	return Registration{Desc: &userServiceDesc, Impl: &userService{store: store}}
}

// TenantManagement returns the registration of the tenant management service.
func TenantManagement(store TenantStore) Registration {
	return Registration{Desc: &tenantServiceDesc, Impl: &tenantService{store: store}}
}

// unary adapts a typed handler to a grpc.MethodDesc handler.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

var userServiceDesc = grpc.ServiceDesc{
	ServiceName: UserManagementService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(UserManagementService, "CreateUser", func(s *userService, ctx context.Context, in *management.User) (*management.User, error) {
			u, err := s.store.CreateUser(ctx, *in)
			if err != nil {
				return nil, err
			}
			return &u, nil
		}),
		unary(UserManagementService, "GetUser", func(s *userService, ctx context.Context, in *GetUserRequest) (*management.User, error) {
			u, err := s.store.GetUser(ctx, in.Username)
			if err != nil {
				return nil, err
			}
			return &u, nil
		}),
		unary(UserManagementService, "ListUsers", func(s *userService, ctx context.Context, _ *Empty) (*ListUsersResponse, error) {
			users, err := s.store.ListUsers(ctx)
			if err != nil {
				return nil, err
			}
			return &ListUsersResponse{Users: users}, nil
		}),
	},
	Metadata: "sitewhere/user.proto",
}

var tenantServiceDesc = grpc.ServiceDesc{
	ServiceName: TenantManagementService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(TenantManagementService, "CreateTenant", func(s *tenantService, ctx context.Context, in *management.Tenant) (*management.Tenant, error) {
			t, err := s.store.CreateTenant(ctx, *in)
			if err != nil {
				return nil, err
			}
			return &t, nil
		}),
		unary(TenantManagementService, "GetTenant", func(s *tenantService, ctx context.Context, in *GetTenantRequest) (*management.Tenant, error) {
			t, err := s.store.GetTenant(ctx, in.Token)
			if err != nil {
				return nil, err
			}
			return &t, nil
		}),
		unary(TenantManagementService, "ListTenants", func(s *tenantService, ctx context.Context, _ *Empty) (*ListTenantsResponse, error) {
			tenants, err := s.store.ListTenants(ctx)
			if err != nil {
				return nil, err
			}
			return &ListTenantsResponse{Tenants: tenants}, nil
		}),
	},
	Metadata: "sitewhere/tenant.proto",
}
