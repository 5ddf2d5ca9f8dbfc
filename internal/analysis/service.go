package analysis

import (
	"context"
	"fmt"

	"github.com/careerlens/careerlens/internal/inference"
)

// Service runs analysis operations through an inference gateway using the
// active policies. It performs no admission control.
type Service struct {
	Gateway  *inference.Gateway
	Policies *Policies
}

// NewService returns a service over gw. A nil policies uses the defaults.
func NewService(gw *inference.Gateway, policies *Policies) *Service {
	if policies == nil {
		policies = NewPolicies(nil)
	}
	return &Service{Gateway: gw, Policies: policies}
}

// Policy returns the active policy for op.
func (s *Service) Policy(op Operation) (Policy, error) {
	policy, ok := s.Policies.Get(op)
	if !ok {
		return Policy{}, fmt.Errorf("no policy for operation %q", op)
	}
	return policy, nil
}

// ParseCV extracts a structured profile from CV text.
func (s *Service) ParseCV(ctx context.Context, in ParseCVInput, requestID string) (inference.Outcome[CVProfile], error) {
	return run(ctx, s, OpParseCV, requestID, func(p Policy) (inference.Request[CVProfile], error) {
		return BuildParseCV(in, p)
	})
}

// MatchJob scores a CV against a job description.
func (s *Service) MatchJob(ctx context.Context, in MatchJobInput, requestID string) (inference.Outcome[JobMatch], error) {
	return run(ctx, s, OpMatchJob, requestID, func(p Policy) (inference.Request[JobMatch], error) {
		return BuildMatchJob(in, p)
	})
}

// CoverLetter writes a cover letter.
func (s *Service) CoverLetter(ctx context.Context, in CoverLetterInput, requestID string) (inference.Outcome[CoverLetter], error) {
	return run(ctx, s, OpCoverLetter, requestID, func(p Policy) (inference.Request[CoverLetter], error) {
		return BuildCoverLetter(in, p)
	})
}

// DetectProfile classifies a pasted text.
func (s *Service) DetectProfile(ctx context.Context, in DetectProfileInput, requestID string) (inference.Outcome[ProfileDetection], error) {
	return run(ctx, s, OpDetectProfile, requestID, func(p Policy) (inference.Request[ProfileDetection], error) {
		return BuildDetectProfile(in, p)
	})
}

// RewriteCV rewrites a CV.
func (s *Service) RewriteCV(ctx context.Context, in RewriteCVInput, requestID string) (inference.Outcome[CVRewrite], error) {
	return run(ctx, s, OpRewriteCV, requestID, func(p Policy) (inference.Request[CVRewrite], error) {
		return BuildRewriteCV(in, p)
	})
}

// run returns an error only when the request could not be built. Once built,
// the outcome is always usable.
func run[T any](ctx context.Context, s *Service, op Operation, requestID string, build func(Policy) (inference.Request[T], error)) (inference.Outcome[T], error) {
	policy, err := s.Policy(op)
	if err != nil {
		return inference.Outcome[T]{}, err
	}
	req, err := build(policy)
	if err != nil {
		return inference.Outcome[T]{}, err
	}
	req.RequestID = requestID
	return inference.Invoke(ctx, s.Gateway, req, policy.Deadline), nil
}
