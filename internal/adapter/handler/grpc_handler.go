package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront-orders/internal/core/service"
)

const (
	ServiceName      = "orders.v1.OrderService"
	MetadataUserID   = "x-user-id"
	metadataReqIDKey = "x-request-id"
)

// OrderServiceServer is the gRPC surface of the order service.
type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
	ListMyOrders(ctx context.Context, req *ListMyOrdersRequest) (*ListOrdersResponse, error)
	CancelOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
	QuoteShipping(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)
}

type GRPCHandler struct {
	orderService    *service.OrderService
	shippingService *service.ShippingService
}

func NewGRPCHandler(orderService *service.OrderService, shippingService *service.ShippingService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, shippingService: shippingService}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	order, err := h.orderService.CreateOrder(ctx, userID, req.toInput())
	if err != nil {
		return nil, grpcError(err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	order, err := h.orderService.GetOrderByID(ctx, userID, req.OrderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) ListMyOrders(ctx context.Context, _ *ListMyOrdersRequest) (*ListOrdersResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := h.orderService.GetAllUserOrders(ctx, userID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newListOrdersResponse(orders), nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	order, err := h.orderService.CancelOrder(ctx, userID, req.OrderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) QuoteShipping(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}

	quote, err := h.shippingService.CalculateShippingFee(ctx, req.DistrictID, req.WardCode, req.parcelItems())
	if err != nil {
		return nil, grpcError(err)
	}
	return newQuoteResponse(quote), nil
}

func callerID(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if values := md.Get(MetadataUserID); len(values) > 0 && values[0] != "" {
		return values[0], nil
	}
	return "", status.Error(codes.Unauthenticated, "missing user identity")
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrServiceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// LoggingInterceptor logs each unary call with its outcome.
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		md, _ := metadata.FromIncomingContext(ctx)
		event := logger.Info()
		if status.Code(err) == codes.Internal || status.Code(err) == codes.Unknown {
			event = logger.Error().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Strs("request_id", md.Get(metadataReqIDKey)).
			Strs("user_id", md.Get(MetadataUserID)).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("rpc completed")
		return resp, err
	}
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

func unaryMethod[Req, Resp any](name string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(OrderServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateOrder", OrderServiceServer.CreateOrder),
		unaryMethod("GetOrder", OrderServiceServer.GetOrder),
		unaryMethod("ListMyOrders", OrderServiceServer.ListMyOrders),
		unaryMethod("CancelOrder", OrderServiceServer.CancelOrder),
		unaryMethod("QuoteShipping", OrderServiceServer.QuoteShipping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orders/v1/order_service",
}

var _ OrderServiceServer = (*GRPCHandler)(nil)
