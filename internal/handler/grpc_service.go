package handler

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
	"github.com/pesio-ai/be-ai-governance/internal/service"
)

// GovernanceServiceName is the fully qualified gRPC service name.
const GovernanceServiceName = "governance.v1.GovernanceService"

// JSONContentSubtype selects the JSON codec. Clients pass
// grpc.CallContentSubtype(JSONContentSubtype) on every call.
const JSONContentSubtype = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return JSONContentSubtype }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ProposalRef names a proposal.
type ProposalRef struct {
	ProposalID string `json:"proposal_id"`
}

// SessionRef names a voting session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// ROIRequest asks for a valuation at a point in time. A nil AsOf means now.
type ROIRequest struct {
	ProposalID string     `json:"proposal_id"`
	AsOf       *time.Time `json:"as_of,omitempty"`
}

// SubmitVoteRequest casts the caller's ballot in a session.
type SubmitVoteRequest struct {
	SessionID string            `json:"session_id"`
	Ballot    governance.Ballot `json:"ballot"`
}

// RecordReviewRequest records a post-implementation review.
type RecordReviewRequest struct {
	ProposalID string                `json:"proposal_id"`
	Review     service.ReviewRequest `json:"review"`
}

// AuditTrail is a proposal's audit log, oldest first.
type AuditTrail struct {
	Entries []*repository.AuditEntry `json:"entries"`
}

// GovernanceServer is the server API for the governance gRPC service.
type GovernanceServer interface {
	CreateProposal(context.Context, *service.ProposalRequest) (*governance.Proposal, error)
	GetProposal(context.Context, *ProposalRef) (*governance.Proposal, error)
	SubmitProposal(context.Context, *ProposalRef) (*service.SubmitResult, error)
	ComputeROI(context.Context, *ROIRequest) (*governance.ROISummary, error)
	EvaluateCriteria(context.Context, *ProposalRef) (*governance.CriteriaEvaluationResult, error)
	ClassifyTier(context.Context, *ProposalRef) (*governance.TierInfo, error)
	MatchAutoApprovalRules(context.Context, *ProposalRef) (*governance.RuleMatchResult, error)
	GetOrCreateVotingSession(context.Context, *ProposalRef) (*governance.VotingSession, error)
	SubmitVote(context.Context, *SubmitVoteRequest) (*governance.Vote, error)
	CloseSessionIfThresholdMet(context.Context, *SessionRef) (*governance.VotingSession, error)
	RecordReview(context.Context, *RecordReviewRequest) (*governance.ImplementationReview, error)
	GetAuditTrail(context.Context, *ProposalRef) (*AuditTrail, error)
}

// RegisterGovernanceServer registers srv on s.
func RegisterGovernanceServer(s grpc.ServiceRegistrar, srv GovernanceServer) {
	s.RegisterService(&GovernanceServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc, running interceptors the
// same way generated code does.
func unary[Req any, Resp any](name string, call func(GovernanceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + GovernanceServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
			}
			if interceptor == nil {
				return call(srv.(GovernanceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(GovernanceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GovernanceServiceDesc describes the governance gRPC service.
var GovernanceServiceDesc = grpc.ServiceDesc{
	ServiceName: GovernanceServiceName,
	HandlerType: (*GovernanceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateProposal", GovernanceServer.CreateProposal),
		unary("GetProposal", GovernanceServer.GetProposal),
		unary("SubmitProposal", GovernanceServer.SubmitProposal),
		unary("ComputeROI", GovernanceServer.ComputeROI),
		unary("EvaluateCriteria", GovernanceServer.EvaluateCriteria),
		unary("ClassifyTier", GovernanceServer.ClassifyTier),
		unary("MatchAutoApprovalRules", GovernanceServer.MatchAutoApprovalRules),
		unary("GetOrCreateVotingSession", GovernanceServer.GetOrCreateVotingSession),
		unary("SubmitVote", GovernanceServer.SubmitVote),
		unary("CloseSessionIfThresholdMet", GovernanceServer.CloseSessionIfThresholdMet),
		unary("RecordReview", GovernanceServer.RecordReview),
		unary("GetAuditTrail", GovernanceServer.GetAuditTrail),
	},
	Streams: []grpc.StreamDesc{},
}
