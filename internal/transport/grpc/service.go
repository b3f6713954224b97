package grpc

import (
	"context"

	"google.golang.org/grpc"

	"tally/internal/model"
)

const (
	ledgerServiceName = "tally.v1.LedgerService"
	eventServiceName  = "tally.v1.EventService"
)

type QueryTransactionRequest struct {
	TransactionID string `json:"transactionId"`
}

// TransactionResponse reports business failures in the body; the RPC itself only fails
// on transport or decoding errors.
type TransactionResponse struct {
	Success      bool                     `json:"success"`
	Transaction  *model.TransactionResult `json:"transaction,omitempty"`
	ErrorCode    model.Code               `json:"errorCode,omitempty"`
	ErrorMessage string                   `json:"errorMessage,omitempty"`
}

type EventRequest struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type EventResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type LedgerServiceServer interface {
	UseBalance(ctx context.Context, req *model.UseBalanceRequest) (*TransactionResponse, error)
	CancelBalance(ctx context.Context, req *model.CancelBalanceRequest) (*TransactionResponse, error)
	QueryTransaction(ctx context.Context, req *QueryTransactionRequest) (*TransactionResponse, error)
}

type EventServiceServer interface {
	Publish(ctx context.Context, req *EventRequest) (*EventResponse, error)
}

// unaryMethod builds the method handler protoc would otherwise generate.
func unaryMethod[S any, Req any, Res any](service, method string, call func(S, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
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
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(ledgerServiceName, "UseBalance", LedgerServiceServer.UseBalance),
		unaryMethod(ledgerServiceName, "CancelBalance", LedgerServiceServer.CancelBalance),
		unaryMethod(ledgerServiceName, "QueryTransaction", LedgerServiceServer.QueryTransaction),
	},
	Streams: []grpc.StreamDesc{},
}

var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: eventServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(eventServiceName, "Publish", EventServiceServer.Publish),
	},
	Streams: []grpc.StreamDesc{},
}

// LedgerClient calls a remote LedgerService.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) UseBalance(ctx context.Context, req *model.UseBalanceRequest) (*TransactionResponse, error) {
	out := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/UseBalance", req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) CancelBalance(ctx context.Context, req *model.CancelBalanceRequest) (*TransactionResponse, error) {
	out := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/CancelBalance", req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) QueryTransaction(ctx context.Context, req *QueryTransactionRequest) (*TransactionResponse, error) {
	out := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/QueryTransaction", req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

type eventClient struct {
	cc grpc.ClientConnInterface
}

func (c *eventClient) Publish(ctx context.Context, req *EventRequest) (*EventResponse, error) {
	out := new(EventResponse)
	if err := c.cc.Invoke(ctx, "/"+eventServiceName+"/Publish", req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}
