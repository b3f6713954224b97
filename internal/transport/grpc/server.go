package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"tally/internal/model"
	"tally/internal/repository"
	"tally/internal/service"
)

// Server exposes the LedgerService and, when this instance is the projection worker,
// the EventService that receives ledger events from a GrpcBus.
type Server struct {
	svc    service.LedgerService
	srv    *grpc.Server
	addr   string
	logger *zap.Logger
}

var (
	_ LedgerServiceServer = (*Server)(nil)
	_ EventServiceServer  = (*Server)(nil)
)

func NewServer(addr string, svc service.LedgerService, withEvents bool, logger *zap.Logger) *Server {
	s := &Server{svc: svc, addr: addr, srv: grpc.NewServer(), logger: logger.With(zap.String("component", "grpc"))}
	s.srv.RegisterService(&LedgerServiceDesc, s)
	if withEvents {
		s.srv.RegisterService(&EventServiceDesc, s)
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	s.logger.Info("gRPC server listening", zap.String("addr", s.addr))
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

func (s *Server) UseBalance(ctx context.Context, req *model.UseBalanceRequest) (*TransactionResponse, error) {
	return s.respond(s.svc.UseBalance(ctx, *req))
}

func (s *Server) CancelBalance(ctx context.Context, req *model.CancelBalanceRequest) (*TransactionResponse, error) {
	return s.respond(s.svc.CancelBalance(ctx, *req))
}

func (s *Server) QueryTransaction(ctx context.Context, req *QueryTransactionRequest) (*TransactionResponse, error) {
	return s.respond(s.svc.QueryTransaction(ctx, req.TransactionID))
}

func (s *Server) respond(res *model.TransactionResult, err error) (*TransactionResponse, error) {
	if err != nil {
		e := model.AsError(err)
		if e == model.ErrInternal {
			s.logger.Error("request failed", zap.Error(err))
		}
		return &TransactionResponse{Success: false, ErrorCode: e.Code, ErrorMessage: e.Description}, nil
	}
	return &TransactionResponse{Success: true, Transaction: res}, nil
}

// Publish receives a ledger event from a remote GrpcBus and projects it.
func (s *Server) Publish(ctx context.Context, req *EventRequest) (*EventResponse, error) {
	if req.Topic != model.TopicTransactionRecorded {
		return &EventResponse{Success: false, ErrorMessage: fmt.Sprintf("unknown topic %q", req.Topic)}, nil
	}
	event, err := repository.DecodeTransactionEvent(req.Payload)
	if err != nil {
		return &EventResponse{Success: false, ErrorMessage: err.Error()}, nil
	}
	if err := s.svc.ProjectTransaction(ctx, *event); err != nil {
		s.logger.Error("failed to project transaction", zap.String("transaction_id", event.Transaction.TransactionID), zap.Error(err))
		return &EventResponse{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &EventResponse{Success: true}, nil
}
