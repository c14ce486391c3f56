package eligibility

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"aeroclaim.io/aeroclaim/internal/domain"
)

// Regulation identifies the compensation regime a result was computed
// under.
type Regulation string

const (
	RegulationEU261 Regulation = "EU261"
	RegulationUSDOT Regulation = "US_DOT"
	RegulationCAAPR Regulation = "CA_APPR"
)

// ReasonCode tags one matched rule. Tests and clients key off codes;
// Detail is for humans and carries no contract.
type ReasonCode string

const (
	ReasonInvalidRoute        ReasonCode = "invalid_route"
	ReasonUnknownAirport      ReasonCode = "unknown_airport"
	ReasonInsufficientData    ReasonCode = "insufficient_data"
	ReasonDelayMeetsThreshold ReasonCode = "delay_meets_threshold"
	ReasonDelayUnderThreshold ReasonCode = "delay_under_threshold"
	ReasonDistanceTier        ReasonCode = "distance_tier"
	ReasonPartialCompensation ReasonCode = "partial_compensation"
	ReasonCancellation        ReasonCode = "cancellation"
	ReasonDeniedBoarding      ReasonCode = "denied_boarding"
	ReasonBaggageNotCovered   ReasonCode = "baggage_not_covered"
	ReasonExtraordinary       ReasonCode = "extraordinary_circumstances"
	ReasonUnsupportedRegion   ReasonCode = "unsupported_region"
)

// Reason is one matched rule with its human-readable explanation.
type Reason struct {
	Code   ReasonCode `json:"code"`
	Detail string     `json:"detail"`
}

// FlightFacts is the engine's complete input. All times are UTC;
// pointers are nil when the fact is unknown.
type FlightFacts struct {
	Departure string
	Arrival   string

	ScheduledDeparture *time.Time
	ScheduledArrival   *time.Time
	ActualDeparture    *time.Time
	ActualArrival      *time.Time

	Incident      domain.IncidentType
	Extraordinary domain.ExtraordinaryCircumstance
}

// FactsFromClaim projects a claim onto the engine input.
func FactsFromClaim(c *domain.Claim) FlightFacts {
	return FlightFacts{
		Departure:          c.DepartureAirport,
		Arrival:            c.ArrivalAirport,
		ScheduledDeparture: c.ScheduledDeparture,
		ScheduledArrival:   c.ScheduledArrival,
		ActualDeparture:    c.ActualDeparture,
		ActualArrival:      c.ActualArrival,
		Incident:           c.IncidentType,
		Extraordinary:      c.Extraordinary,
	}
}

// Result is the determination. Amount is nil whenever Eligible is
// false; a true Eligible with ManualReviewRequired set means the
// amount is theoretical and must not auto-approve.
type Result struct {
	Eligible   bool
	Amount     *decimal.Decimal
	Currency   string
	Regulation Regulation

	Reasons      []Reason
	Requirements []domain.DocumentType

	DistanceKm   float64
	DelayMinutes int

	Extraordinary        domain.ExtraordinaryCircumstance
	ManualReviewRequired bool
}

// DelayHours converts the gate delay to fractional hours.
func (r Result) DelayHours() float64 {
	return float64(r.DelayMinutes) / 60
}

// HasReason reports whether code is among the matched rules.
func (r Result) HasReason(code ReasonCode) bool {
	for _, reason := range r.Reasons {
		if reason.Code == code {
			return true
		}
	}
	return false
}

// Engine evaluates flight facts against the regulation tiers. It holds
// only the immutable airport table.
type Engine struct {
	airports *Registry
}

// NewEngine builds an engine over the given airport table.
func NewEngine(reg *Registry) *Engine {
	return &Engine{airports: reg}
}

// Delay threshold and tier boundaries under EU261. The halving band
// for long-haul routes is the open interval (3h, 4h): a delay of
// exactly 3h earns the full tier.
const (
	delayThresholdMin = 180
	partialBandEndMin = 240

	shortHaulKm  = 1500.0
	mediumHaulKm = 3500.0
)

var (
	tierShort  = decimal.NewFromInt(250)
	tierMedium = decimal.NewFromInt(400)
	tierLong   = decimal.NewFromInt(600)
	two        = decimal.NewFromInt(2)
)

// Evaluate runs the determination. It is deterministic: equal inputs
// produce equal results.
func (e *Engine) Evaluate(facts FlightFacts, region domain.Region) Result {
	res := Result{Regulation: RegulationEU261, Currency: "EUR"}

	switch region {
	case domain.RegionEU, "":
		// EU is the default regime.
	case domain.RegionUS:
		res.Regulation = RegulationUSDOT
		res.Currency = "USD"
		return unsupportedRegion(res, region)
	case domain.RegionCA:
		res.Regulation = RegulationCAAPR
		res.Currency = "CAD"
		return unsupportedRegion(res, region)
	default:
		return unsupportedRegion(res, region)
	}

	dep, depOK := e.airports.Lookup(facts.Departure)
	arr, arrOK := e.airports.Lookup(facts.Arrival)

	if depOK && arrOK && dep.IATA == arr.IATA {
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonInvalidRoute,
			Detail: fmt.Sprintf("departure and arrival are both %s", dep.IATA),
		})
		return res
	}
	if !depOK || !arrOK {
		missing := facts.Departure
		if depOK {
			missing = facts.Arrival
		}
		res.ManualReviewRequired = true
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonUnknownAirport,
			Detail: fmt.Sprintf("airport %q is not in the reference table", missing),
		})
		return res
	}

	if facts.ScheduledArrival == nil {
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonInsufficientData,
			Detail: "scheduled arrival time is required",
		})
		return res
	}

	res.DistanceKm = Distance(dep, arr)
	res.Requirements = requirementsFor(facts.Incident)

	delayMin, delayKnown := gateDelayMinutes(facts, arr)
	res.DelayMinutes = delayMin

	switch facts.Incident {
	case domain.IncidentBaggageDelay:
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonBaggageNotCovered,
			Detail: "baggage delay is not compensated under EU261",
		})
		return res

	case domain.IncidentDelay:
		if !delayKnown {
			res.Reasons = append(res.Reasons, Reason{
				Code:   ReasonInsufficientData,
				Detail: "neither actual arrival nor actual departure is known",
			})
			return res
		}
		if delayMin < delayThresholdMin {
			res.Reasons = append(res.Reasons, Reason{
				Code:   ReasonDelayUnderThreshold,
				Detail: fmt.Sprintf("delay of %.1fh is under the 3h threshold", float64(delayMin)/60),
			})
			return e.withExtraordinary(res, facts)
		}
		res.Eligible = true
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonDelayMeetsThreshold,
			Detail: fmt.Sprintf("delay of %.1fh meets the 3h threshold", float64(delayMin)/60),
		})

	case domain.IncidentCancellation:
		res.Eligible = true
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonCancellation,
			Detail: "cancelled flights compensate at the full distance tier",
		})

	case domain.IncidentDeniedBoarding:
		res.Eligible = true
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonDeniedBoarding,
			Detail: "denied boarding compensates at the full distance tier",
		})

	default:
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonInsufficientData,
			Detail: fmt.Sprintf("unknown incident type %q", facts.Incident),
		})
		return res
	}

	amount, tierDetail := tierAmount(res.DistanceKm, dep.EU && arr.EU)
	res.Reasons = append(res.Reasons, Reason{Code: ReasonDistanceTier, Detail: tierDetail})

	// Long-haul delays resolved before the 4h mark pay half the tier.
	// Cancellations and denied boarding always pay in full.
	if facts.Incident == domain.IncidentDelay &&
		res.DistanceKm > mediumHaulKm &&
		delayMin > delayThresholdMin && delayMin < partialBandEndMin {
		amount = amount.Div(two)
		res.Reasons = append(res.Reasons, Reason{
			Code:   ReasonPartialCompensation,
			Detail: fmt.Sprintf("delay of %.1fh resolved under 4h halves the long-haul tier", float64(delayMin)/60),
		})
	}

	res.Amount = &amount
	return e.withExtraordinary(res, facts)
}

func unsupportedRegion(res Result, region domain.Region) Result {
	res.ManualReviewRequired = true
	res.Reasons = append(res.Reasons, Reason{
		Code:   ReasonUnsupportedRegion,
		Detail: fmt.Sprintf("region %q has no automated determination", region),
	})
	return res
}

// withExtraordinary tags carrier-liability reduction claims. The
// theoretical amount survives so reviewers can see what is at stake,
// but nothing auto-approves while the tag is set.
func (e *Engine) withExtraordinary(res Result, facts FlightFacts) Result {
	if !facts.Extraordinary.Valid() {
		return res
	}
	res.Extraordinary = facts.Extraordinary
	res.ManualReviewRequired = true
	res.Reasons = append(res.Reasons, Reason{
		Code:   ReasonExtraordinary,
		Detail: fmt.Sprintf("carrier claims extraordinary circumstances: %s", facts.Extraordinary),
	})
	return res
}

// gateDelayMinutes measures arrival delay at the gate. Preference
// order: actual gate arrival, then an estimate from actual departure
// plus scheduled block time plus the destination's taxi-in minutes.
// Touchdown time is never used directly; the regulation counts gate
// arrival. Sub-minute remainders truncate.
func gateDelayMinutes(facts FlightFacts, arr Airport) (minutes int, known bool) {
	sched := *facts.ScheduledArrival

	switch {
	case facts.ActualArrival != nil:
		minutes = int(facts.ActualArrival.Sub(sched) / time.Minute)
	case facts.ActualDeparture != nil && facts.ScheduledDeparture != nil:
		depDelay := facts.ActualDeparture.Sub(*facts.ScheduledDeparture)
		minutes = int(depDelay/time.Minute) + arr.TaxiInMin
	default:
		return 0, false
	}

	if minutes < 0 {
		minutes = 0
	}
	return minutes, true
}

// tierAmount maps distance to the EU261 compensation tier. Long-haul
// flights wholly within the covered area cap at the medium tier.
func tierAmount(distanceKm float64, intraEU bool) (decimal.Decimal, string) {
	switch {
	case distanceKm <= shortHaulKm:
		return tierShort, fmt.Sprintf("distance %.0f km is within the 1500 km tier", distanceKm)
	case distanceKm <= mediumHaulKm:
		return tierMedium, fmt.Sprintf("distance %.0f km is within the 3500 km tier", distanceKm)
	case intraEU:
		return tierMedium, fmt.Sprintf("distance %.0f km exceeds 3500 km but stays intra-EU", distanceKm)
	default:
		return tierLong, fmt.Sprintf("distance %.0f km exceeds 3500 km", distanceKm)
	}
}

// requirementsFor lists the documents a claim of this incident type
// needs before payout.
func requirementsFor(incident domain.IncidentType) []domain.DocumentType {
	base := []domain.DocumentType{domain.DocBoardingPass, domain.DocIDDocument, domain.DocBankStatement}
	switch incident {
	case domain.IncidentDelay:
		return append(base, domain.DocDelayCertificate)
	case domain.IncidentCancellation:
		return append(base, domain.DocCancellationNotice)
	case domain.IncidentDeniedBoarding:
		return append(base, domain.DocFlightTicket)
	}
	return base
}
