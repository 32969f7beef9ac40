package governance

// ClassifyTier places a proposal in a governance tier. Each dimension is
// banded independently and the most scrutinized band wins, so raising cost,
// risk or sensitivity can never lower the tier. A missing value bands as
// full oversight.
func ClassifyTier(p *Proposal, t Thresholds) Tier {
	tier := TierAutoApprovable
	tier = MaxTier(tier, costTier(p.Cost, t))
	tier = MaxTier(tier, riskTier(p.RiskScore, t))
	tier = MaxTier(tier, classificationTier(p.DataClassification, t))
	if len(p.EscalationTriggers) > 0 {
		tier = TierPartnerEscalation
	}
	return tier
}

func costTier(cost *Money, t Thresholds) Tier {
	switch {
	case cost == nil:
		return TierFullOversight
	case *cost >= t.PartnerMinCost:
		return TierPartnerEscalation
	case *cost > t.FastTrackMaxCost:
		return TierFullOversight
	case *cost > t.AutoApproveMaxCost:
		return TierFastTrack
	default:
		return TierAutoApprovable
	}
}

func riskTier(risk *int, t Thresholds) Tier {
	switch {
	case risk == nil:
		return TierFullOversight
	case *risk >= t.PartnerMinRisk:
		return TierPartnerEscalation
	case *risk > t.FastTrackMaxRisk:
		return TierFullOversight
	case *risk > t.AutoApproveMaxRisk:
		return TierFastTrack
	default:
		return TierAutoApprovable
	}
}

func classificationTier(c *DataClassification, t Thresholds) Tier {
	if c == nil {
		return TierFullOversight
	}
	s := c.Sensitivity()
	switch {
	case s > t.FastTrackMaxClassification.Sensitivity():
		return TierFullOversight
	case s > t.AutoApproveMaxClassification.Sensitivity():
		return TierFastTrack
	default:
		return TierAutoApprovable
	}
}
