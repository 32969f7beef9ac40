package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/service"
)

// UserIDMetadataKey carries the caller's identity on gRPC calls.
const UserIDMetadataKey = "x-user-id"

type identityKey struct{}

// GRPCHandler implements the governance gRPC interface
type GRPCHandler struct {
	governance *service.GovernanceService
	proposals  *service.ProposalService
	reviews    *service.ReviewService
	logger     zerolog.Logger
}

var _ GovernanceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(
	gov *service.GovernanceService,
	proposals *service.ProposalService,
	reviews *service.ReviewService,
	logger zerolog.Logger,
) *GRPCHandler {
	return &GRPCHandler{
		governance: gov,
		proposals:  proposals,
		reviews:    reviews,
		logger:     logger.With().Str("handler", "grpc").Logger(),
	}
}

// UnaryInterceptor copies the caller identity from metadata into the context
// and logs each call.
func (h *GRPCHandler) UnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(UserIDMetadataKey); len(ids) > 0 && ids[0] != "" {
			ctx = context.WithValue(ctx, identityKey{}, ids[0])
		}
	}

	start := time.Now()
	resp, err := next(ctx, req)
	event := h.logger.Info()
	if status.Code(err) == codes.Internal {
		event = h.logger.Error().Err(err)
	}
	event.
		Str("method", info.FullMethod).
		Str("user_id", userID(ctx)).
		Str("code", status.Code(err).String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC call")
	return resp, err
}

// userID extracts the caller identity from context, or returns empty string.
func userID(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(string); ok {
		return id
	}
	return ""
}

func requireUser(ctx context.Context) (string, error) {
	id := userID(ctx)
	if id == "" {
		return "", status.Error(codes.Unauthenticated, UserIDMetadataKey+" metadata is required")
	}
	return id, nil
}

// CreateProposal creates a draft proposal owned by the caller
func (h *GRPCHandler) CreateProposal(ctx context.Context, req *service.ProposalRequest) (*governance.Proposal, error) {
	actor, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	p, err := h.proposals.CreateProposal(ctx, req, actor)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return p, nil
}

// GetProposal retrieves a proposal
func (h *GRPCHandler) GetProposal(ctx context.Context, req *ProposalRef) (*governance.Proposal, error) {
	p, err := h.proposals.GetProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return p, nil
}

// SubmitProposal submits a draft and routes it
func (h *GRPCHandler) SubmitProposal(ctx context.Context, req *ProposalRef) (*service.SubmitResult, error) {
	actor, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	h.logger.Info().Str("proposal_id", req.ProposalID).Msg("gRPC SubmitProposal called")

	result, err := h.proposals.SubmitProposal(ctx, req.ProposalID, actor)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return result, nil
}

func (h *GRPCHandler) ComputeROI(ctx context.Context, req *ROIRequest) (*governance.ROISummary, error) {
	var asOf time.Time
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	summary, err := h.governance.ComputeROI(ctx, req.ProposalID, asOf)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return summary, nil
}

func (h *GRPCHandler) EvaluateCriteria(ctx context.Context, req *ProposalRef) (*governance.CriteriaEvaluationResult, error) {
	result, err := h.governance.EvaluateCriteria(ctx, req.ProposalID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &result, nil
}

func (h *GRPCHandler) ClassifyTier(ctx context.Context, req *ProposalRef) (*governance.TierInfo, error) {
	tier, err := h.governance.ClassifyTier(ctx, req.ProposalID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	info := tier.Info()
	return &info, nil
}

func (h *GRPCHandler) MatchAutoApprovalRules(ctx context.Context, req *ProposalRef) (*governance.RuleMatchResult, error) {
	result, err := h.governance.MatchAutoApprovalRules(ctx, req.ProposalID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &result, nil
}

func (h *GRPCHandler) GetOrCreateVotingSession(ctx context.Context, req *ProposalRef) (*governance.VotingSession, error) {
	actor, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	session, err := h.governance.GetOrCreateVotingSession(ctx, req.ProposalID, actor)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return session, nil
}

// SubmitVote casts the caller's ballot
func (h *GRPCHandler) SubmitVote(ctx context.Context, req *SubmitVoteRequest) (*governance.Vote, error) {
	voter, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	vote, err := h.governance.SubmitVote(ctx, req.SessionID, voter, req.Ballot)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return vote, nil
}

func (h *GRPCHandler) CloseSessionIfThresholdMet(ctx context.Context, req *SessionRef) (*governance.VotingSession, error) {
	actor, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	session, err := h.governance.CloseSessionIfThresholdMet(ctx, req.SessionID, actor)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return session, nil
}

func (h *GRPCHandler) RecordReview(ctx context.Context, req *RecordReviewRequest) (*governance.ImplementationReview, error) {
	reviewer, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	review, err := h.reviews.RecordReview(ctx, req.ProposalID, &req.Review, reviewer)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return review, nil
}

func (h *GRPCHandler) GetAuditTrail(ctx context.Context, req *ProposalRef) (*AuditTrail, error) {
	entries, err := h.governance.GetAuditTrail(ctx, req.ProposalID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &AuditTrail{Entries: entries}, nil
}

// mapErrorToGRPC maps service error codes to gRPC status codes
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case errors.ErrCodeAlreadyVoted:
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.ErrCodeConflict, errors.ErrCodeSessionClosed, errors.ErrCodeRuleConflict:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.ErrCodeUnauthorized, errors.ErrCodeNotEligible:
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
