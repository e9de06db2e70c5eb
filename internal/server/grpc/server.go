// Package grpcserver exposes the matchmaking engine over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/anonmatch/internal/convert"
	"github.com/and161185/anonmatch/internal/crypto"
	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
	"github.com/and161185/anonmatch/internal/notify"
	"github.com/and161185/anonmatch/internal/service"
)

// Server wires the match service into gRPC handlers.
// Partners are only ever exposed as pseudonyms.
type Server struct {
	match   service.MatchService
	signKey []byte
	ids     *crypto.Pseudonym
	hub     *notify.Hub
}

var _ MatchmakerServer = (*Server)(nil)

// New constructs a gRPC server. hub may be nil, in which case Events is unavailable.
func New(match service.MatchService, signKey []byte, ids *crypto.Pseudonym, hub *notify.Hub) *Server {
	return &Server{match: match, signKey: signKey, ids: ids, hub: hub}
}

// participant prefers the id stored by AuthUnary/AuthStream and falls back to
// parsing the token when the interceptors are not installed.
func (s *Server) participant(ctx context.Context) (model.ParticipantID, error) {
	if id, ok := ParticipantFromCtx(ctx); ok {
		return id, nil
	}
	id, err := participantFromToken(ctx, s.signKey)
	if err != nil {
		return 0, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

// RequestMatch starts a search with the filters carried in the request.
func (s *Server) RequestMatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.search(ctx, in, s.match.RequestMatch)
}

// RequestNext leaves the current chat or search and starts a new search.
func (s *Server) RequestNext(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.search(ctx, in, s.match.RequestNext)
}

type searchFunc func(context.Context, model.ParticipantID, model.Filters) (service.MatchResult, error)

func (s *Server) search(ctx context.Context, in *structpb.Struct, call searchFunc) (*structpb.Struct, error) {
	id, err := s.participant(ctx)
	if err != nil {
		return nil, err
	}
	f, err := convert.FiltersFromStruct(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad filters: %v", err)
	}
	res, err := call(ctx, id, f)
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{"status": res.Status.String()}
	switch res.Status {
	case service.MatchPaired:
		out["partner"] = s.ids.Of(res.PartnerID)
	case service.MatchQueued:
		out["search_id"] = res.SearchID.String()
	}
	return structpb.NewStruct(out)
}

// CancelSearch reports whether a running search was cancelled.
func (s *Server) CancelSearch(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	id, err := s.participant(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.match.CancelSearch(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

// EndChat returns what was stopped: "ended", "cancelled" or "idle".
func (s *Server) EndChat(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	id, err := s.participant(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.match.EndChat(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(res.String()), nil
}

func (s *Server) SetSecretMode(ctx context.Context, in *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	id, err := s.participant(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.match.SetSecretMode(ctx, id, in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// GetPartner returns the partner pseudonym and the session's secret mode flag.
func (s *Server) GetPartner(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, err := s.participant(ctx)
	if err != nil {
		return nil, err
	}
	partner, err := s.match.GetPartner(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	secret, err := s.match.IsSecretMode(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"partner":     s.ids.Of(partner),
		"secret_mode": secret,
	})
}

func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if _, err := s.participant(ctx); err != nil {
		return nil, err
	}
	st, err := s.match.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.StatsToStruct(st), nil
}

// Events streams the caller's notifications until the client goes away or a
// newer subscription for the same participant replaces this one.
func (s *Server) Events(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.hub == nil {
		return status.Error(codes.Unimplemented, "event stream disabled")
	}
	ctx := stream.Context()
	id, err := s.participant(ctx)
	if err != nil {
		return err
	}
	events, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return status.Error(codes.Aborted, "replaced by a newer subscription")
			}
			var partner string
			if ev.Kind == model.EventPartnerFound {
				partner = s.ids.Of(ev.PartnerID)
			}
			if err := stream.Send(convert.EventToStruct(ev, partner)); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidFilters):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrBanned):
		return status.Error(codes.PermissionDenied, "banned")
	case errors.Is(err, errs.ErrAlreadyInChat):
		return status.Error(codes.FailedPrecondition, "already in chat")
	case errors.Is(err, errs.ErrNotInChat):
		return status.Error(codes.FailedPrecondition, "not in chat")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "no profile")
	case errors.Is(err, errs.ErrDeliveryFailed):
		return status.Error(codes.Unavailable, "partner found but notification failed")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "no auth")
	case errors.Is(err, errs.ErrClosed):
		return status.Error(codes.Unavailable, "shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Errorf(codes.Internal, "internal: %v", err)
	}
}
