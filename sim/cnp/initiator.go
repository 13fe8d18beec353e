package cnp

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jobshop-sim/jobshop-sim/sim"
)

// DefaultProposalTimeout bounds how long one round waits for bids.
const DefaultProposalTimeout = 5 * time.Second

// Initiator runs Contract-Net rounds against a registry of responders. It
// implements sim.Negotiator.
type Initiator struct {
	registry  *Registry
	timeout   time.Duration
	metrics   *sim.Metrics
	collector *sim.Collector
}

// NewInitiator creates an initiator over the given registry. metrics and
// collector may be nil.
func NewInitiator(reg *Registry, metrics *sim.Metrics, collector *sim.Collector) *Initiator {
	return &Initiator{
		registry:  reg,
		timeout:   DefaultProposalTimeout,
		metrics:   metrics,
		collector: collector,
	}
}

// SetTimeout overrides the per-round proposal timeout.
func (in *Initiator) SetTimeout(d time.Duration) {
	if d > 0 {
		in.timeout = d
	}
}

type bid struct {
	proposal Proposal
	score    float64
}

// Negotiate runs one full round for the requested operation: fan the CFP out
// to every responder of the required type, collect bids until all have
// answered or the timeout expires, then award best-first with fallback to
// the next bidder whenever revalidation reports a race.
func (in *Initiator) Negotiate(ctx context.Context, req sim.NegotiationRequest) (*sim.Assignment, bool, error) {
	responders := in.eligible(req)
	if len(responders) == 0 {
		return nil, false, nil
	}

	roundID := uuid.NewString()
	cfp := CallForProposal{
		RoundID:        roundID,
		JobID:          req.JobID,
		OperationIndex: req.OperationIndex,
		MachineType:    req.MachineType,
		Duration:       req.Duration,
		CurrentTime:    req.CurrentTime,
		DueDate:        req.DueDate,
	}

	bids, err := in.collect(ctx, responders, cfp, req.DueDate)
	if err != nil {
		return nil, false, err
	}
	if len(bids) == 0 {
		return nil, false, nil
	}

	sort.Slice(bids, func(i, j int) bool {
		if bids[i].score != bids[j].score {
			return bids[i].score < bids[j].score
		}
		return bids[i].proposal.MachineID < bids[j].proposal.MachineID
	})

	for i, b := range bids {
		r := in.registry.Get(b.proposal.MachineID)
		if r == nil {
			continue
		}
		conf := r.ConfirmAccept(Accept{
			RoundID:        roundID,
			JobID:          req.JobID,
			OperationIndex: req.OperationIndex,
			Start:          b.proposal.ExpectedStart,
			End:            b.proposal.ExpectedEnd,
			CurrentTime:    req.CurrentTime,
		})
		if conf.Confirmed() {
			// Earlier bidders already answered their Accept with a Failure;
			// everyone after the winner gets an explicit Reject.
			in.rejectLosers(roundID, bids[i+1:])
			return &sim.Assignment{
				JobID:          req.JobID,
				OperationIndex: req.OperationIndex,
				MachineID:      b.proposal.MachineID,
				ExpectedStart:  b.proposal.ExpectedStart,
				ExpectedEnd:    b.proposal.ExpectedEnd,
			}, true, nil
		}
		logrus.Debugf("round %s: M%d rejected award (%s); falling back", roundID, b.proposal.MachineID, conf.Reason)
		if in.metrics != nil {
			in.metrics.RaceRetries++
		}
		in.collector.RecordRaceConflict()
	}
	return nil, false, nil
}

func (in *Initiator) rejectLosers(roundID string, losers []bid) {
	for _, b := range losers {
		if r := in.registry.Get(b.proposal.MachineID); r != nil {
			r.RejectProposal(Reject{RoundID: roundID, MachineID: b.proposal.MachineID})
		}
	}
}

func (in *Initiator) eligible(req sim.NegotiationRequest) []*Responder {
	all := in.registry.ByType(req.MachineType)
	if req.ExcludeMachine < 0 {
		return all
	}
	out := make([]*Responder, 0, len(all))
	for _, r := range all {
		if r.ID() != req.ExcludeMachine {
			out = append(out, r)
		}
	}
	return out
}

// collect fans the CFP out and gathers answers. A timeout is not an error:
// the round proceeds with whatever bids arrived in time.
func (in *Initiator) collect(ctx context.Context, responders []*Responder, cfp CallForProposal, dueDate float64) ([]bid, error) {
	type answer struct {
		proposal Proposal
		refused  bool
	}
	answers := make(chan answer, len(responders))
	for _, r := range responders {
		go func(r *Responder) {
			p, ref := r.Propose(cfp)
			answers <- answer{proposal: p, refused: ref != nil}
		}(r)
	}

	timer := time.NewTimer(in.timeout)
	defer timer.Stop()

	var bids []bid
	for i := 0; i < len(responders); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case a := <-answers:
			if a.refused {
				continue
			}
			bids = append(bids, bid{
				proposal: a.proposal,
				score:    Score(a.proposal.ExpectedEnd, dueDate),
			})
		case <-timer.C:
			logrus.Warnf("round %s: proposal timeout, proceeding with %d of %d answers", cfp.RoundID, len(bids), len(responders))
			return bids, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return bids, nil
}
