package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

// VotingStore is the in-memory session and vote tables.
type VotingStore struct{ db *DB }

func (s *VotingStore) CreateSessionIfNone(_ context.Context, session *governance.VotingSession) (*governance.VotingSession, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.proposals[session.ProposalID]; !ok {
		return nil, false, errors.NotFound("proposal", session.ProposalID)
	}
	if _, ok := s.db.autoDecisions[session.ProposalID]; ok {
		return nil, false, errors.New(errors.ErrCodeConflict, "proposal was decided automatically")
	}
	if open := s.db.openSession(session.ProposalID); open != nil {
		return copySession(open), false, nil
	}

	session.ID = newID()
	s.db.sessions[session.ID] = copySession(session)
	if err := s.db.setProposalStatus(session.ProposalID, governance.StatusUnderReview, governance.OversightUnderReview, nil); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func (s *VotingStore) GetSession(_ context.Context, id string) (*governance.VotingSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	session, ok := s.db.sessions[id]
	if !ok {
		return nil, errors.NotFound("voting_session", id)
	}
	return copySession(session), nil
}

func (s *VotingStore) GetOpenSession(_ context.Context, proposalID string) (*governance.VotingSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if open := s.db.openSession(proposalID); open != nil {
		return copySession(open), nil
	}
	return nil, nil
}

func (s *VotingStore) ListSessions(_ context.Context, proposalID string) ([]*governance.VotingSession, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*governance.VotingSession
	for _, id := range sortedKeys(s.db.sessions) {
		if session := s.db.sessions[id]; session.ProposalID == proposalID {
			out = append(out, copySession(session))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *VotingStore) ListVotes(_ context.Context, sessionID string) ([]*governance.Vote, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.sessionVotes(sessionID), nil
}

func (s *VotingStore) CastVote(_ context.Context, v *governance.Vote, decide repository.DecideFunc) (*repository.CastVoteResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	session, ok := s.db.sessions[v.SessionID]
	if !ok {
		return nil, errors.NotFound("voting_session", v.SessionID)
	}

	for _, existing := range s.db.votes {
		if existing.ProposalID == session.ProposalID && existing.VoterID == v.VoterID && existing.Pathway == session.Pathway {
			if existing.SamePayload(v) {
				return &repository.CastVoteResult{Vote: copyVote(existing), Session: copySession(session), Duplicate: true}, nil
			}
			return nil, errors.New(errors.ErrCodeAlreadyVoted, "voter has already voted on this pathway")
		}
	}
	if !session.IsOpen() {
		return nil, errors.New(errors.ErrCodeSessionClosed, fmt.Sprintf("voting session closed: %s", session.Outcome))
	}

	v.ID = newID()
	v.ProposalID = session.ProposalID
	v.Pathway = session.Pathway
	s.db.votes = append(s.db.votes, copyVote(v))

	closed, err := s.db.tallyAndMaybeClose(session, v.CreatedAt, decide)
	if err != nil {
		return nil, err
	}
	return &repository.CastVoteResult{Vote: v, Session: copySession(session), Closed: closed}, nil
}

func (s *VotingStore) CloseIfDecided(_ context.Context, sessionID string, now time.Time, decide repository.DecideFunc) (*repository.CloseResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	session, ok := s.db.sessions[sessionID]
	if !ok {
		return nil, errors.NotFound("voting_session", sessionID)
	}
	if !session.IsOpen() {
		return &repository.CloseResult{Session: copySession(session)}, nil
	}
	closed, err := s.db.tallyAndMaybeClose(session, now, decide)
	if err != nil {
		return nil, err
	}
	return &repository.CloseResult{Session: copySession(session), Closed: closed}, nil
}

// The helpers below require db.mu.

func (db *DB) openSession(proposalID string) *governance.VotingSession {
	for _, session := range db.sessions {
		if session.ProposalID == proposalID && session.IsOpen() {
			return session
		}
	}
	return nil
}

// decidedBySession reports whether a session for the proposal closed
// approved or rejected.
func (db *DB) decidedBySession(proposalID string) bool {
	for _, session := range db.sessions {
		if session.ProposalID == proposalID &&
			(session.Outcome == governance.OutcomeApproved || session.Outcome == governance.OutcomeRejected) {
			return true
		}
	}
	return false
}

func (db *DB) sessionVotes(sessionID string) []*governance.Vote {
	var out []*governance.Vote
	for _, v := range db.votes {
		if v.SessionID == sessionID {
			out = append(out, copyVote(v))
		}
	}
	return out
}

func (db *DB) tallyAndMaybeClose(session *governance.VotingSession, now time.Time, decide repository.DecideFunc) (bool, error) {
	session.Tally = governance.CountVotes(db.sessionVotes(session.ID))
	outcome := decide(copySession(session), session.Tally)
	if outcome == governance.OutcomeNone {
		return false, nil
	}

	closedAt := now
	session.ClosedAt = &closedAt
	session.Outcome = outcome

	var reviewedAt *time.Time
	if outcome == governance.OutcomeApproved || outcome == governance.OutcomeRejected {
		reviewedAt = &closedAt
	}
	return true, db.setProposalStatus(session.ProposalID,
		governance.LifecycleStatusFor(outcome), governance.OversightStatusFor(outcome), reviewedAt)
}
