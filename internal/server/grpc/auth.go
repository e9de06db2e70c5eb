package grpcserver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/anonmatch/internal/model"
)

// NewToken mints an HS256 access token whose subject is the participant id.
func NewToken(signKey []byte, id model.ParticipantID, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(id, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signKey)
}

// participantFromToken extracts "authorization: Bearer <JWT>", verifies HS256 and
// returns sub as a participant id.
func participantFromToken(ctx context.Context, signKey []byte) (model.ParticipantID, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return 0, err
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return signKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30*time.Second), jwt.WithExpirationRequired())
	if err := v.Validate(&claims); err != nil {
		return 0, errors.New("token expired or not valid yet")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("bad subject")
	}
	return id, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

func ownMethod(full string) bool { return strings.HasPrefix(full, "/"+ServiceName+"/") }

// AuthUnary authenticates Matchmaker calls and stores the participant in context.
// Other services (health, reflection) pass through.
func AuthUnary(signKey []byte) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !ownMethod(info.FullMethod) {
			return next(ctx, req)
		}
		id, err := participantFromToken(ctx, signKey)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		return next(WithParticipant(ctx, id), req)
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// AuthStream is the streaming counterpart of AuthUnary.
func AuthStream(signKey []byte) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if !ownMethod(info.FullMethod) {
			return next(srv, ss)
		}
		id, err := participantFromToken(ss.Context(), signKey)
		if err != nil {
			return status.Error(codes.Unauthenticated, "no auth")
		}
		return next(srv, &authedStream{ServerStream: ss, ctx: WithParticipant(ss.Context(), id)})
	}
}
