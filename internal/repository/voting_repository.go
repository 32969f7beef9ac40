package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

const sessionColumns = `
	id, proposal_id, pathway, eligible_voters, deadline, fast_track_eligible,
	approvals, rejections, abstentions, deferrals, total_votes,
	created_by, created_at, closed_at, outcome`

const voteColumns = `
	id, session_id, proposal_id, voter_id, decision, pathway,
	reason, conditions, concerns, criteria_snapshot, created_at`

// VotingRepository manages voting sessions and their votes. Every tally
// change and close happens inside one transaction holding the session row
// lock, so concurrent votes serialise per session.
type VotingRepository struct {
	db *database.DB
}

// NewVotingRepository creates a new VotingRepository.
func NewVotingRepository(db *database.DB) *VotingRepository {
	return &VotingRepository{db: db}
}

// CreateSessionIfNone opens s unless the proposal already has an open
// session, in which case that session is returned with created=false. A
// proposal that was auto-decided cannot get a session.
func (r *VotingRepository) CreateSessionIfNone(ctx context.Context, s *governance.VotingSession) (session *governance.VotingSession, created bool, err error) {
	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockProposal(ctx, tx, s.ProposalID); err != nil {
			return err
		}

		var decided bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM auto_decisions WHERE proposal_id = $1)`, s.ProposalID,
		).Scan(&decided); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to check auto decision")
		}
		if decided {
			return errors.New(errors.ErrCodeConflict, "proposal was decided automatically")
		}

		existing, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM voting_sessions WHERE proposal_id = $1 AND closed_at IS NULL`, s.ProposalID))
		if err == nil {
			session = existing
			return nil
		}
		if err != pgx.ErrNoRows {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to find open session")
		}

		voters, err := json.Marshal(nonNil(s.EligibleVoters))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal eligible voters")
		}
		query := `
			INSERT INTO voting_sessions
			    (proposal_id, pathway, eligible_voters, deadline, fast_track_eligible,
			     created_by, created_at)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7)
			RETURNING id
		`
		err = tx.QueryRow(ctx, query,
			s.ProposalID,
			string(s.Pathway),
			voters,
			s.Deadline,
			s.FastTrackEligible,
			s.CreatedBy,
			s.CreatedAt,
		).Scan(&s.ID)
		if database.IsUniqueViolation(err, constraintOneOpenSession) {
			return errors.New(errors.ErrCodeConflict, "proposal already has an open voting session")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create voting session")
		}

		if err := updateProposalStatus(ctx, tx, s.ProposalID, governance.StatusUnderReview, governance.OversightUnderReview, nil); err != nil {
			return err
		}
		session, created = s, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return session, created, nil
}

// GetSession retrieves a session by primary key.
func (r *VotingRepository) GetSession(ctx context.Context, id string) (*governance.VotingSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM voting_sessions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("voting_session", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get voting session")
	}
	return s, nil
}

// GetOpenSession returns the open session for a proposal, or nil.
func (r *VotingRepository) GetOpenSession(ctx context.Context, proposalID string) (*governance.VotingSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM voting_sessions WHERE proposal_id = $1 AND closed_at IS NULL`, proposalID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get open voting session")
	}
	return s, nil
}

// ListSessions returns every session for a proposal, oldest first.
func (r *VotingRepository) ListSessions(ctx context.Context, proposalID string) ([]*governance.VotingSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM voting_sessions WHERE proposal_id = $1 ORDER BY created_at ASC, id ASC`, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list voting sessions")
	}
	defer rows.Close()

	var sessions []*governance.VotingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan voting session")
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListVotes returns a session's votes in the order they were cast.
func (r *VotingRepository) ListVotes(ctx context.Context, sessionID string) ([]*governance.Vote, error) {
	return listVotes(ctx, r.db, sessionID)
}

// CastVote records v and, when decide reports a terminal outcome for the new
// tally, closes the session and settles the proposal in the same
// transaction. An identical resubmission returns the stored vote.
func (r *VotingRepository) CastVote(ctx context.Context, v *governance.Vote, decide DecideFunc) (*CastVoteResult, error) {
	res := &CastVoteResult{}
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		session, err := lockSession(ctx, tx, v.SessionID)
		if err != nil {
			return err
		}
		res.Session = session

		existing, err := scanVote(tx.QueryRow(ctx,
			`SELECT `+voteColumns+` FROM votes WHERE proposal_id = $1 AND voter_id = $2 AND pathway = $3`,
			session.ProposalID, v.VoterID, string(session.Pathway)))
		switch {
		case err == nil:
			if existing.SamePayload(v) {
				res.Vote, res.Duplicate = existing, true
				return nil
			}
			return errors.New(errors.ErrCodeAlreadyVoted, "voter has already voted on this pathway")
		case err != pgx.ErrNoRows:
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to check existing vote")
		}

		if !session.IsOpen() {
			return errors.New(errors.ErrCodeSessionClosed, fmt.Sprintf("voting session closed: %s", session.Outcome))
		}

		v.ProposalID = session.ProposalID
		v.Pathway = session.Pathway
		if err := insertVote(ctx, tx, v); err != nil {
			return err
		}
		res.Vote = v

		closed, err := tallyAndMaybeClose(ctx, tx, session, v.CreatedAt, decide)
		if err != nil {
			return err
		}
		res.Closed = closed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CloseIfDecided re-tallies a session and closes it when decide reports a
// terminal outcome. Closed sessions are returned unchanged.
func (r *VotingRepository) CloseIfDecided(ctx context.Context, sessionID string, now time.Time, decide DecideFunc) (*CloseResult, error) {
	res := &CloseResult{}
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		session, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		res.Session = session
		if !session.IsOpen() {
			return nil
		}
		closed, err := tallyAndMaybeClose(ctx, tx, session, now, decide)
		res.Closed = closed
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ── transactional helpers ────────────────────────────────────────────────────

func lockSession(ctx context.Context, tx pgx.Tx, id string) (*governance.VotingSession, error) {
	s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM voting_sessions WHERE id = $1 FOR UPDATE`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("voting_session", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock voting session")
	}
	return s, nil
}

func insertVote(ctx context.Context, tx pgx.Tx, v *governance.Vote) error {
	snapshot, err := json.Marshal(v.CriteriaSnapshot)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal criteria snapshot")
	}

	query := `
		INSERT INTO votes
		    (session_id, proposal_id, voter_id, decision, pathway,
		     reason, conditions, concerns, criteria_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		v.SessionID,
		v.ProposalID,
		v.VoterID,
		string(v.Decision),
		string(v.Pathway),
		v.Reason,
		v.Conditions,
		v.Concerns,
		snapshot,
		v.CreatedAt,
	).Scan(&v.ID)
	if database.IsUniqueViolation(err, constraintVoteUnique) {
		return errors.New(errors.ErrCodeAlreadyVoted, "voter has already voted on this pathway")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record vote")
	}
	return nil
}

// tallyAndMaybeClose stores the fresh tally on the locked session and closes
// it when decide returns a terminal outcome.
func tallyAndMaybeClose(ctx context.Context, tx pgx.Tx, s *governance.VotingSession, now time.Time, decide DecideFunc) (bool, error) {
	votes, err := listVotes(ctx, tx, s.ID)
	if err != nil {
		return false, err
	}
	s.Tally = governance.CountVotes(votes)

	outcome := decide(s, s.Tally)
	var closedAt *time.Time
	if outcome != governance.OutcomeNone {
		closedAt = &now
	}

	query := `
		UPDATE voting_sessions
		SET approvals   = $2,
		    rejections  = $3,
		    abstentions = $4,
		    deferrals   = $5,
		    total_votes = $6,
		    closed_at   = $7,
		    outcome     = $8
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		s.ID,
		s.Tally.Approvals,
		s.Tally.Rejections,
		s.Tally.Abstentions,
		s.Tally.Deferrals,
		s.Tally.Total,
		closedAt,
		string(outcome),
	); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to update tally")
	}
	if closedAt == nil {
		return false, nil
	}

	s.ClosedAt, s.Outcome = closedAt, outcome
	err = updateProposalStatus(ctx, tx, s.ProposalID,
		governance.LifecycleStatusFor(outcome), governance.OversightStatusFor(outcome), reviewedAt(outcome, now))
	return true, err
}

// reviewedAt is stamped only by a decision; escalation keeps the proposal
// under review.
func reviewedAt(o governance.Outcome, now time.Time) *time.Time {
	if o == governance.OutcomeApproved || o == governance.OutcomeRejected {
		return &now
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listVotes(ctx context.Context, q querier, sessionID string) ([]*governance.Vote, error) {
	rows, err := q.Query(ctx, `SELECT `+voteColumns+` FROM votes WHERE session_id = $1 ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list votes")
	}
	defer rows.Close()

	var votes []*governance.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan vote")
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanSession(row rowScanner) (*governance.VotingSession, error) {
	s := &governance.VotingSession{}
	var (
		votersJSON       []byte
		pathway, outcome string
	)

	err := row.Scan(
		&s.ID,
		&s.ProposalID,
		&pathway,
		&votersJSON,
		&s.Deadline,
		&s.FastTrackEligible,
		&s.Tally.Approvals,
		&s.Tally.Rejections,
		&s.Tally.Abstentions,
		&s.Tally.Deferrals,
		&s.Tally.Total,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.ClosedAt,
		&outcome,
	)
	if err != nil {
		return nil, err
	}
	s.Pathway = governance.Pathway(pathway)
	s.Outcome = governance.Outcome(outcome)
	if err := json.Unmarshal(votersJSON, &s.EligibleVoters); err != nil {
		return nil, fmt.Errorf("unmarshal eligible voters: %w", err)
	}
	return s, nil
}

func scanVote(row rowScanner) (*governance.Vote, error) {
	v := &governance.Vote{}
	var (
		snapshotJSON      []byte
		decision, pathway string
	)

	err := row.Scan(
		&v.ID,
		&v.SessionID,
		&v.ProposalID,
		&v.VoterID,
		&decision,
		&pathway,
		&v.Reason,
		&v.Conditions,
		&v.Concerns,
		&snapshotJSON,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Decision = governance.VoteDecision(decision)
	v.Pathway = governance.Pathway(pathway)
	if err := json.Unmarshal(snapshotJSON, &v.CriteriaSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal criteria snapshot: %w", err)
	}
	return v, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
